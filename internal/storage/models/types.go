// Package models defines the bun ORM row types backing the durable queue,
// flow status, resume, concurrency, and trigger tables (§3).
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONBMap is a generic jsonb column of arbitrary key/value data: job args,
// extras, trigger config.
type JSONBMap map[string]interface{}

func (j JSONBMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

func (j *JSONBMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONBMap)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("failed to scan JSONBMap: value is not []byte or string")
		}
	}
	if len(bytes) == 0 {
		*j = make(JSONBMap)
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// JSONBRaw is a jsonb column stored and retrieved as opaque bytes, used for
// the serialized flow.Status/flow.Value blobs that only the flow engine
// needs to decode.
type JSONBRaw json.RawMessage

func (j JSONBRaw) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSONBRaw) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append([]byte(nil), v...)
	case string:
		*j = []byte(v)
	default:
		return errors.New("failed to scan JSONBRaw: unexpected type")
	}
	return nil
}

// StringArray is a text[] column, used for a job's labels.
type StringArray []string

func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	bytes, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	s := string(bytes)
	return "{" + s[1:len(s)-1] + "}", nil
}

func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = make(StringArray, 0)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan StringArray: unexpected type")
	}
	if len(bytes) == 0 || string(bytes) == "{}" {
		*a = make(StringArray, 0)
		return nil
	}
	s := string(bytes)
	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		jsonStr := "[" + s[1:len(s)-1] + "]"
		return json.Unmarshal([]byte(jsonStr), a)
	}
	return errors.New("invalid PostgreSQL array format")
}
