package client

// Credential is the API token. It never prints its value.
type Credential string

// String implements fmt.Stringer.
func (c Credential) String() string {
	if c == "" {
		return ""
	}
	return "[redacted]"
}

// GoString implements fmt.GoStringer so %#v is redacted too.
func (c Credential) GoString() string {
	return `"` + c.String() + `"`
}

// MarshalText keeps the token out of structured logs and encoded configs.
func (c Credential) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Empty reports whether no token was supplied.
func (c Credential) Empty() bool {
	return c == ""
}
