// Package plistutil provides a minimal typed view over the dynamically
// shaped XML plist dictionaries GrandSlam exchanges use as their wire
// format. howett.net/plist decodes a plist document into plain Go values
// (map[string]any, []any, string, []byte, int64, bool, time.Time); this
// package adds key-pathed, error-returning accessors on top so callers
// never type-assert by hand.
package plistutil

import (
	"bytes"
	"fmt"

	"howett.net/plist"
)

// Dict is a decoded plist dictionary. Values are one of: string, []byte,
// int64, bool, time.Time, []any, or Dict — the tagged sum the design
// notes call for, expressed as Go's dynamic typing plus these accessors.
type Dict map[string]any

// KeyError reports a missing or mistyped key, carrying the path to it so
// callers can tell which nested dictionary failed.
type KeyError struct {
	Path   string
	Reason string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("plist key %q: %s", e.Path, e.Reason)
}

func missing(path string) error {
	return &KeyError{Path: path, Reason: "missing"}
}

func wrongType(path string, want string, got any) error {
	return &KeyError{Path: path, Reason: fmt.Sprintf("want %s, got %T", want, got)}
}

// ParseXML decodes an XML plist document into a Dict. The top level of the
// document must be a dictionary.
func ParseXML(data []byte) (Dict, error) {
	var v any
	if _, err := plist.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode plist: %w", err)
	}
	d, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode plist: top level is %T, want dictionary", v)
	}
	return Dict(d), nil
}

// WriteXML serializes v (typically a Dict) as an XML plist document.
func WriteXML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := plist.NewEncoderForFormat(&buf, plist.XMLFormat)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode plist: %w", err)
	}
	return buf.Bytes(), nil
}

// GetString returns d[key] as a string.
func GetString(d Dict, key string) (string, error) {
	v, ok := d[key]
	if !ok {
		return "", missing(key)
	}
	s, ok := v.(string)
	if !ok {
		return "", wrongType(key, "string", v)
	}
	return s, nil
}

// GetData returns d[key] as raw bytes (a plist <data> element).
func GetData(d Dict, key string) ([]byte, error) {
	v, ok := d[key]
	if !ok {
		return nil, missing(key)
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, wrongType(key, "data", v)
	}
	return b, nil
}

// GetDict returns d[key] as a nested Dict.
func GetDict(d Dict, key string) (Dict, error) {
	v, ok := d[key]
	if !ok {
		return nil, missing(key)
	}
	switch t := v.(type) {
	case map[string]any:
		return Dict(t), nil
	case Dict:
		return t, nil
	default:
		return nil, wrongType(key, "dictionary", v)
	}
}

// GetSignedInteger returns d[key] as a signed integer, accepting any of
// the integer widths plist decoding may produce.
func GetSignedInteger(d Dict, key string) (int64, error) {
	v, ok := d[key]
	if !ok {
		return 0, missing(key)
	}
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case uint64:
		return int64(t), nil
	case int32:
		return int64(t), nil
	default:
		return 0, wrongType(key, "integer", v)
	}
}

// GetBool returns d[key] as a boolean.
func GetBool(d Dict, key string) (bool, error) {
	v, ok := d[key]
	if !ok {
		return false, missing(key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, wrongType(key, "bool", v)
	}
	return b, nil
}

// GetArray returns d[key] as a slice of decoded elements.
func GetArray(d Dict, key string) ([]any, error) {
	v, ok := d[key]
	if !ok {
		return nil, missing(key)
	}
	a, ok := v.([]any)
	if !ok {
		return nil, wrongType(key, "array", v)
	}
	return a, nil
}

// OptString returns d[key] as a string, or "" if absent. It still errors on
// a present-but-mistyped value.
func OptString(d Dict, key string) (string, error) {
	if _, ok := d[key]; !ok {
		return "", nil
	}
	return GetString(d, key)
}
