package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONB stores an arbitrary JSON document in a single column. It backs every
// loosely-structured field on Container and Secret (env, volumes, labels,
// meters, status, controller data) so the schema doesn't need a migration
// every time a platform adapter wants to stash another field.
type JSONB json.RawMessage

// Value implements driver.Valuer.
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = JSONB(v)
		return nil
	default:
		return errors.New("models: JSONB.Scan: unsupported type")
	}
}

// MarshalJSON implements json.Marshaler.
func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSONB) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("models: JSONB.UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// IsZero reports whether the document is empty or JSON null.
func (j JSONB) IsZero() bool {
	return len(j) == 0 || string(j) == "null"
}

// NewJSONB marshals v into a JSONB column value.
func NewJSONB(v interface{}) (JSONB, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSONB(b), nil
}

// MustNewJSONB is NewJSONB but panics on marshal error; only safe for
// values that are known to be marshalable (constants, literals in tests).
func MustNewJSONB(v interface{}) JSONB {
	j, err := NewJSONB(v)
	if err != nil {
		panic(err)
	}
	return j
}

// Unmarshal decodes the document into v.
func (j JSONB) Unmarshal(v interface{}) error {
	if j.IsZero() {
		return nil
	}
	return json.Unmarshal(j, v)
}
