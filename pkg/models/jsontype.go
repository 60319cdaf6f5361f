package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONMap persists an arbitrary map[string]interface{} in a jsonb column.
// Used for flow_data, content, info, state, execution_details and every
// other free-shape blob the data model calls for.
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("JSONMap: unsupported scan source")
	}
	if len(bytes) == 0 {
		*m = JSONMap{}
		return nil
	}
	out := JSONMap{}
	if err := json.Unmarshal(bytes, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// GormDataType tells GORM to use jsonb on postgres.
func (JSONMap) GormDataType() string { return "jsonb" }

// JSONList persists an arbitrary []interface{} in a jsonb column.
type JSONList []interface{}

func (l JSONList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

func (l *JSONList) Scan(value interface{}) error {
	if value == nil {
		*l = JSONList{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("JSONList: unsupported scan source")
	}
	if len(bytes) == 0 {
		*l = JSONList{}
		return nil
	}
	out := JSONList{}
	if err := json.Unmarshal(bytes, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

func (JSONList) GormDataType() string { return "jsonb" }
