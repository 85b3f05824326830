package schema

import "strconv"

// CoerceArgs recursively coerces string-valued tool-call arguments to the
// scalar type declared by the cleaned schema, preserving all keys. A
// string is left untouched whenever coercing it would lose information —
// a leading-zero numeric string ("007") is never coerced, since stripping
// the leading zero changes its meaning for things like zip codes.
//
// Grounded on original_source's fix_tool_call_args / fix_single_arg_recursive
// (json_schema.rs).
func CoerceArgs(args map[string]interface{}, cleanedSchema interface{}) map[string]interface{} {
	schemaMap, _ := cleanedSchema.(map[string]interface{})
	props, _ := schemaMap["properties"].(map[string]interface{})

	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		propSchema, _ := props[k].(map[string]interface{})
		out[k] = coerceValue(v, propSchema)
	}
	return out
}

func coerceValue(v interface{}, propSchema map[string]interface{}) interface{} {
	typ, _ := propSchema["type"].(string)

	switch t := v.(type) {
	case string:
		return coerceString(t, typ)
	case []interface{}:
		itemSchema, _ := propSchema["items"].(map[string]interface{})
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = coerceValue(item, itemSchema)
		}
		return out
	case map[string]interface{}:
		nestedProps, _ := propSchema["properties"].(map[string]interface{})
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			nested, _ := nestedProps[k].(map[string]interface{})
			out[k] = coerceValue(val, nested)
		}
		return out
	default:
		return v
	}
}

func coerceString(s, declaredType string) interface{} {
	if hasLeadingZeroDigits(s) {
		return s
	}
	switch declaredType {
	case "integer":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case "number":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "boolean":
		if s == "true" {
			return true
		}
		if s == "false" {
			return false
		}
	}
	return s
}

// hasLeadingZeroDigits reports whether s looks like a numeric string that
// would lose its leading zero(s) if parsed as a number, e.g. "007" or
// "0123". A lone "0" is fine to coerce; everything else starting with '0'
// followed by another digit is protected.
func hasLeadingZeroDigits(s string) bool {
	if len(s) < 2 {
		return false
	}
	if s[0] != '0' {
		return false
	}
	return s[1] >= '0' && s[1] <= '9'
}
