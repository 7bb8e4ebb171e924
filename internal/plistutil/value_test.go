package plistutil

import (
	"errors"
	"testing"
)

func TestParseXMLRoundTrip(t *testing.T) {
	d := Dict{
		"s":   "hello",
		"i":   int64(42),
		"b":   true,
		"bin": []byte{1, 2, 3},
		"sub": Dict{"k": "v"},
	}
	raw, err := WriteXML(d)
	if err != nil {
		t.Fatalf("WriteXML: %v", err)
	}
	parsed, err := ParseXML(raw)
	if err != nil {
		t.Fatalf("ParseXML: %v", err)
	}

	if s, err := GetString(parsed, "s"); err != nil || s != "hello" {
		t.Fatalf("GetString: %q, %v", s, err)
	}
	if i, err := GetSignedInteger(parsed, "i"); err != nil || i != 42 {
		t.Fatalf("GetSignedInteger: %d, %v", i, err)
	}
	if b, err := GetBool(parsed, "b"); err != nil || !b {
		t.Fatalf("GetBool: %v, %v", b, err)
	}
	if bin, err := GetData(parsed, "bin"); err != nil || len(bin) != 3 {
		t.Fatalf("GetData: %v, %v", bin, err)
	}
	sub, err := GetDict(parsed, "sub")
	if err != nil {
		t.Fatalf("GetDict: %v", err)
	}
	if v, err := GetString(sub, "k"); err != nil || v != "v" {
		t.Fatalf("nested GetString: %q, %v", v, err)
	}
}

func TestGetStringMissingKeyError(t *testing.T) {
	_, err := GetString(Dict{}, "missing")
	var keyErr *KeyError
	if !errors.As(err, &keyErr) {
		t.Fatalf("expected *KeyError, got %T", err)
	}
	if keyErr.Path != "missing" {
		t.Fatalf("path = %q", keyErr.Path)
	}
}

func TestGetSignedIntegerWrongType(t *testing.T) {
	_, err := GetSignedInteger(Dict{"x": "not an int"}, "x")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestOptStringAbsent(t *testing.T) {
	s, err := OptString(Dict{}, "missing")
	if err != nil || s != "" {
		t.Fatalf("OptString: %q, %v", s, err)
	}
}
