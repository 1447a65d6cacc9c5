package doc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Fields is the schemaless body of a document.
type Fields map[string]any

// Family names one entity family stored under a user namespace.
type Family string

const (
	FamilyAddresses        Family = "addresses"
	FamilyCart             Family = "cart"
	FamilyCheckoutSessions Family = "checkout_sessions"
	FamilyOrders           Family = "orders"
)

// Collection returns the collection path for a family under a user namespace.
func Collection(userID string, family Family) string {
	return fmt.Sprintf("users/%s/%s", userID, family)
}

// Encode converts a tagged struct into Fields.
// Numbers are kept as json.Number so integers survive the round trip exactly.
func Encode(v any) (Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON object into Fields.
func Parse(data []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var f Fields
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if f == nil {
		f = Fields{}
	}
	return f, nil
}

// Decode populates v (a pointer to a tagged struct) from Fields.
func Decode(f Fields, v any) error {
	data, err := MarshalCanonical(f)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// String returns the string value at key, or "" when absent or not a string.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Bool returns the bool value at key, or false when absent.
func (f Fields) Bool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
