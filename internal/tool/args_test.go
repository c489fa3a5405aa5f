package tool

import (
	"encoding/json"
	"testing"
)

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"filePath":   "file_path",
		"Offset":     "offset",
		"already_ok": "already_ok",
		"id":         "id",
	}
	for in, want := range cases {
		if got := ToSnakeCase(in); got != want {
			t.Errorf("ToSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToCamelCase(t *testing.T) {
	cases := map[string]string{
		"file_path":  "filePath",
		"offset":     "offset",
		"alreadyOk":  "alreadyOk",
		"old_path_x": "oldPathX",
	}
	for in, want := range cases {
		if got := ToCamelCase(in); got != want {
			t.Errorf("ToCamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSnakeCamelRoundTrip(t *testing.T) {
	wellFormed := []string{"file_path", "offset", "old_string", "a_b_c"}
	for _, s := range wellFormed {
		if got := ToSnakeCase(ToCamelCase(s)); got != s {
			t.Errorf("to_snake_case(to_camel_case(%q)) = %q, want %q", s, got, s)
		}
	}
}

func TestCanonicalizeArgKeys_AddsBothSpellings(t *testing.T) {
	input := json.RawMessage(`{"file_path": "/tmp/x.txt", "limit": 10}`)
	out := CanonicalizeArgKeys(input)

	var m map[string]json.RawMessage
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if string(m["filePath"]) != `"/tmp/x.txt"` {
		t.Errorf("expected camelCase alias filePath to be added, got %v", m["filePath"])
	}
	if string(m["file_path"]) != `"/tmp/x.txt"` {
		t.Errorf("expected original key file_path to survive, got %v", m["file_path"])
	}
	if string(m["limit"]) != "10" {
		t.Errorf("keys with no case variation should be untouched, got %v", m["limit"])
	}
}

func TestCanonicalizeArgKeys_LiteralKeyWins(t *testing.T) {
	// both spellings already present with different values; the literal
	// value for each key must never be overwritten by the derived alias.
	input := json.RawMessage(`{"filePath": "a", "file_path": "b"}`)
	out := CanonicalizeArgKeys(input)

	var m map[string]json.RawMessage
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if string(m["filePath"]) != `"a"` || string(m["file_path"]) != `"b"` {
		t.Errorf("expected literal keys to be preserved, got filePath=%v file_path=%v", m["filePath"], m["file_path"])
	}
}

func TestCanonicalizeArgKeys_InvalidJSONPassesThrough(t *testing.T) {
	input := json.RawMessage(`not json`)
	if got := CanonicalizeArgKeys(input); string(got) != string(input) {
		t.Errorf("expected invalid input to pass through unchanged, got %q", got)
	}
}
