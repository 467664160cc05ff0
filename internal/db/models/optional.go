package models

import (
	"bytes"
	"encoding/json"
)

// OptionalString distinguishes a JSON field that was omitted, explicitly null, or set.
// The zero value means omitted.
type OptionalString struct {
	Set   bool
	Valid bool
	Value string
}

// Some returns an OptionalString holding v.
func Some(v string) OptionalString {
	return OptionalString{Set: true, Valid: true, Value: v}
}

// Null returns an OptionalString that clears the field.
func Null() OptionalString {
	return OptionalString{Set: true}
}

// UnmarshalJSON is only invoked for keys present in the document, which is how omitted
// fields keep Set == false.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Valid = false
		o.Value = ""
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

// MarshalJSON writes null for omitted and null values.
func (o OptionalString) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// IsNull reports whether the field was explicitly set to null.
func (o OptionalString) IsNull() bool {
	return o.Set && !o.Valid
}

// Apply returns the field's new value given its current one.
func (o OptionalString) Apply(current *string) *string {
	switch {
	case !o.Set:
		return current
	case !o.Valid:
		return nil
	default:
		v := o.Value
		return &v
	}
}
