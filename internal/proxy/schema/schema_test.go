package schema

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return v
}

func TestCleanIsIdempotent(t *testing.T) {
	in := decode(t, `{"type":"OBJECT","properties":{"x":{"type":["string","null"],"minLength":3}},"required":["x","y"]}`)
	once := Clean(in, "t")
	twice := Clean(once, "t")
	onceJSON, _ := json.Marshal(once)
	twiceJSON, _ := json.Marshal(twice)
	if string(onceJSON) != string(twiceJSON) {
		t.Fatalf("not idempotent:\n%s\nvs\n%s", onceJSON, twiceJSON)
	}
}

func TestCleanWhitelistOnly(t *testing.T) {
	in := decode(t, `{"type":"string","$schema":"x","pattern":"^a","foo":"bar"}`)
	out := Clean(in, "t").(map[string]interface{})
	for k := range out {
		if !whitelistedKeys[k] {
			t.Fatalf("unexpected key %q survived cleaning", k)
		}
	}
}

func TestCleanTypeLowercasedAndNonNull(t *testing.T) {
	in := decode(t, `{"type":"STRING"}`)
	out := Clean(in, "t").(map[string]interface{})
	if out["type"] != "string" {
		t.Fatalf("expected lowercase string type, got %v", out["type"])
	}
}

func TestUnionCollapseNullable(t *testing.T) {
	in := decode(t, `{"anyOf":[{"type":"string"},{"type":"null"}],"description":"x"}`)
	out := Clean(in, "t").(map[string]interface{})
	if out["type"] != "string" {
		t.Fatalf("expected type string, got %v", out["type"])
	}
	if out["description"] != "x (nullable)" {
		t.Fatalf("expected description 'x (nullable)', got %v", out["description"])
	}
}

func TestEmptyUnionLeavesNodeUnchangedExceptType(t *testing.T) {
	in := decode(t, `{"anyOf":[],"description":"empty"}`)
	out := Clean(in, "t").(map[string]interface{})
	if out["description"] != "empty" {
		t.Fatalf("description changed: %v", out["description"])
	}
	if _, hasAnyOf := out["anyOf"]; hasAnyOf {
		t.Fatalf("anyOf key should have been removed")
	}
}

func TestUnresolvableRefDegradesToString(t *testing.T) {
	in := decode(t, `{"$ref":"#/$defs/Missing"}`)
	out := Clean(in, "t").(map[string]interface{})
	if out["type"] != "string" {
		t.Fatalf("expected string fallback, got %v", out["type"])
	}
	desc, _ := out["description"].(string)
	if desc == "" || !contains(desc, "Unresolved $ref") {
		t.Fatalf("expected description mentioning Unresolved $ref, got %q", desc)
	}
}

func TestRefFlatteningResolves(t *testing.T) {
	in := decode(t, `{
		"$defs": {"Point": {"type":"object","properties":{"x":{"type":"number"}}}},
		"type":"object",
		"properties": {"p": {"$ref":"#/$defs/Point"}}
	}`)
	out := Clean(in, "t").(map[string]interface{})
	props := out["properties"].(map[string]interface{})
	p := props["p"].(map[string]interface{})
	if p["type"] != "object" {
		t.Fatalf("expected resolved ref to be object, got %v", p)
	}
}

func TestFunctionCallPayloadUntouched(t *testing.T) {
	in := decode(t, `{"functionCall":{"name":"x","args":{"a":1}}}`)
	out := Clean(in, "t").(map[string]interface{})
	if _, ok := out["functionCall"]; !ok {
		t.Fatalf("functionCall payload was stripped")
	}
}

func TestItemsMovedIntoPropertiesOnObjectLike(t *testing.T) {
	in := decode(t, `{"type":"object","items":{"properties":{"a":{"type":"string"}}}}`)
	out := Clean(in, "t").(map[string]interface{})
	if _, ok := out["items"]; ok {
		t.Fatalf("items should have been healed away")
	}
	props, ok := out["properties"].(map[string]interface{})
	if !ok || props["a"] == nil {
		t.Fatalf("expected healed properties to contain 'a', got %v", out)
	}
}

func TestConstraintsFoldedIntoDescription(t *testing.T) {
	in := decode(t, `{"type":"string","minLength":3,"maxLength":10}`)
	out := Clean(in, "t").(map[string]interface{})
	if _, ok := out["minLength"]; ok {
		t.Fatalf("minLength should never be emitted")
	}
	desc, _ := out["description"].(string)
	if !contains(desc, "Constraint") {
		t.Fatalf("expected constraint hint in description, got %q", desc)
	}
}

func TestRequiredDropsMissingProperties(t *testing.T) {
	in := decode(t, `{"type":"object","properties":{"a":{"type":"string"}},"required":["a","ghost"]}`)
	out := Clean(in, "t").(map[string]interface{})
	req, _ := out["required"].([]interface{})
	if len(req) != 1 || req[0] != "a" {
		t.Fatalf("expected required=[a], got %v", req)
	}
}

func TestCoerceArgsPreservesKeysAndLeadingZero(t *testing.T) {
	cleaned := decode(t, `{"type":"object","properties":{"n":{"type":"integer"},"zip":{"type":"integer"},"ok":{"type":"boolean"}}}`)
	args := map[string]interface{}{"n": "5", "zip": "007", "ok": "true"}
	out := CoerceArgs(args, cleaned)
	if out["n"] != int64(5) {
		t.Fatalf("expected n coerced to int64(5), got %v (%T)", out["n"], out["n"])
	}
	if out["zip"] != "007" {
		t.Fatalf("expected zip to remain string \"007\", got %v", out["zip"])
	}
	if out["ok"] != true {
		t.Fatalf("expected ok coerced to true, got %v", out["ok"])
	}
	if len(out) != len(args) {
		t.Fatalf("coercion changed key count: got %d want %d", len(out), len(args))
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
