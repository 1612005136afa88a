package models

import (
	"encoding/json"
	"errors"
)

// ErrNullField is returned when a patch carries an explicit null for a field
// that cannot be cleared.
var ErrNullField = errors.New("field may be omitted but not null")

// Field is one optionally present value of a partial update. Set is true only
// when the client supplied the key.
type Field[T any] struct {
	Set   bool
	Value T
}

// Some returns a present field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Or returns the field value when present, otherwise fallback.
func (f Field[T]) Or(fallback T) T {
	if f.Set {
		return f.Value
	}
	return fallback
}

// UnmarshalJSON is only invoked for keys present in the document.
func (f *Field[T]) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return ErrNullField
	}
	if err := json.Unmarshal(b, &f.Value); err != nil {
		return err
	}
	f.Set = true
	return nil
}

// MarshalJSON writes the value, or null when absent.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}
