package config

import (
	"encoding/json"
	"fmt"
)

// URLList accepts either a single URL or a list of URLs.
type URLList []string

func (u *URLList) set(v any) error {
	switch val := v.(type) {
	case nil:
		*u = nil
	case string:
		*u = URLList{val}
	case []any:
		out := make(URLList, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("replica URLs must be a string or list of strings, got %T in list", item)
			}
			out = append(out, s)
		}
		*u = out
	case []string:
		*u = append(URLList{}, val...)
	default:
		return fmt.Errorf("replica URLs must be a string or list of strings, got %T", v)
	}
	return nil
}

func (u *URLList) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return u.set(v)
}

func (u *URLList) UnmarshalYAML(unmarshal func(any) error) error {
	var v any
	if err := unmarshal(&v); err != nil {
		return err
	}
	return u.set(v)
}

// UnmarshalTOML implements toml.Unmarshaler.
func (u *URLList) UnmarshalTOML(v any) error {
	return u.set(v)
}
