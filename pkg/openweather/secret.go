package openweather

// redactedPlaceholder replaces the credential in every string or
// serialized representation.
const redactedPlaceholder = "**********"

// Secret wraps the provider API key so that incidental formatting,
// logging, or serialization can never expose the raw value. The only way
// to obtain the underlying credential is an explicit Reveal call.
type Secret string

// String implements fmt.Stringer and always redacts.
func (s Secret) String() string {
	return redactedPlaceholder
}

// GoString implements fmt.GoStringer so %#v is redacted as well.
func (s Secret) GoString() string {
	return "openweather.Secret(" + redactedPlaceholder + ")"
}

// MarshalJSON redacts the value in JSON output.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// MarshalText redacts the value in text-based encodings (YAML, etc.).
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redactedPlaceholder), nil
}

// Reveal returns the raw credential value.
func (s Secret) Reveal() string {
	return string(s)
}

// IsEmpty reports whether no credential is set.
func (s Secret) IsEmpty() bool {
	return len(s) == 0
}
