// Package schema sanitizes client-supplied JSON-Schema tool declarations
// into the restricted shape the Gemini upstream accepts. The transformation
// is pure and deterministic: the same input schema always cleans to the
// same output, which is what makes the (tool_name, schema_hash) cache in
// cache.go sound.
//
// Grounded on _examples/original_source/src-tauri/src/proxy/common/json_schema.rs,
// reimplemented idiomatically (map[string]interface{} trees instead of
// serde_json::Value, explicit visited-set cycle guards instead of a
// recursion-depth counter).
package schema

import (
	"sort"
	"strconv"
	"strings"
)

// whitelistedKeys are the only keys a cleaned schema node may carry.
var whitelistedKeys = map[string]bool{
	"type":        true,
	"description": true,
	"properties":  true,
	"required":    true,
	"items":       true,
	"enum":        true,
	"title":       true,
}

// constraintKeys are folded into the description rather than emitted.
var constraintKeys = []string{
	"minLength", "maxLength", "pattern", "minimum", "maximum",
	"multipleOf", "exclusiveMinimum", "exclusiveMaximum",
	"minItems", "maxItems", "format",
}

// Clean transforms schema (a JSON-Schema fragment decoded into Go's
// generic map/slice/interface{} shape) into a Gemini-compatible schema.
// toolName selects a registered pre/post adapter hook (see adapters.go).
// The input is not mutated; Clean always returns a fresh tree.
func Clean(input interface{}, toolName string) interface{} {
	if pre, ok := adapterPre[toolName]; ok {
		input = pre(input)
	}

	defs := map[string]interface{}{}
	collectDefs(input, defs)

	flattened := flattenRefs(input, defs, map[string]bool{})
	cleaned := cleanNode(flattened, true)

	if post, ok := adapterPost[toolName]; ok {
		cleaned = post(cleaned)
	}
	return cleaned
}

// --- Pass 1: $defs/$definitions collection and $ref flattening ---

func collectDefs(node interface{}, into map[string]interface{}) {
	m, ok := node.(map[string]interface{})
	if !ok {
		if arr, ok := node.([]interface{}); ok {
			for _, v := range arr {
				collectDefs(v, into)
			}
		}
		return
	}
	for _, key := range []string{"$defs", "definitions"} {
		if defsMap, ok := m[key].(map[string]interface{}); ok {
			for name, def := range defsMap {
				if _, exists := into[name]; !exists {
					into[name] = def
				}
			}
		}
	}
	for k, v := range m {
		if k == "$defs" || k == "definitions" {
			continue
		}
		collectDefs(v, into)
	}
}

const unresolvedRefDescription = "(Unresolved $ref: "

// flattenRefs walks the tree resolving $ref nodes against defs. visited
// guards against cyclic $ref chains (Design Note: "Cyclic references in
// schemas... Guard with a visited set keyed by $ref target").
func flattenRefs(node interface{}, defs map[string]interface{}, visited map[string]bool) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		if ref, ok := v["$ref"].(string); ok {
			name := refName(ref)
			if visited[name] {
				return map[string]interface{}{
					"type":        "string",
					"description": unresolvedRefDescription + ref + ", cyclic)",
				}
			}
			target, ok := defs[name]
			if !ok {
				return map[string]interface{}{
					"type":        "string",
					"description": unresolvedRefDescription + ref + ")",
				}
			}
			visited[name] = true
			resolved := flattenRefs(target, defs, visited)
			delete(visited, name)
			resolvedMap, ok := resolved.(map[string]interface{})
			if !ok {
				return resolved
			}
			out := map[string]interface{}{}
			for k, val := range resolvedMap {
				out[k] = val
			}
			// Sibling keys alongside $ref (rare but legal) take precedence.
			for k, val := range v {
				if k == "$ref" {
					continue
				}
				out[k] = flattenRefs(val, defs, visited)
			}
			return out
		}
		out := map[string]interface{}{}
		for k, val := range v {
			if k == "$defs" || k == "definitions" {
				continue
			}
			out[k] = flattenRefs(val, defs, visited)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = flattenRefs(val, defs, visited)
		}
		return out
	default:
		return node
	}
}

func refName(ref string) string {
	idx := strings.LastIndexByte(ref, '/')
	if idx == -1 {
		return ref
	}
	return ref[idx+1:]
}

// --- Pass 2: per-node sanitization ---

func isFunctionPayload(m map[string]interface{}) bool {
	_, hasCall := m["functionCall"]
	_, hasResp := m["functionResponse"]
	return hasCall || hasResp
}

func cleanNode(node interface{}, isSchemaNode bool) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		if isFunctionPayload(v) {
			// Never touch request payloads mislabeled as schema nodes.
			out := map[string]interface{}{}
			for k, val := range v {
				out[k] = val
			}
			return out
		}
		return cleanSchemaMap(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = cleanNode(val, isSchemaNode)
		}
		return out
	default:
		return node
	}
}

func cleanSchemaMap(m map[string]interface{}) map[string]interface{} {
	work := map[string]interface{}{}
	for k, v := range m {
		work[k] = v
	}

	mergeAllOf(work)
	healItemsOnObjectLike(work)
	collapseUnion(work)

	// Recurse into properties/items before whitelist filtering removes
	// sibling keys that this node's children don't care about.
	if props, ok := work["properties"].(map[string]interface{}); ok {
		cleanedProps := map[string]interface{}{}
		for name, val := range props {
			cleanedProps[name] = cleanNode(val, true)
		}
		work["properties"] = cleanedProps
	}
	if items, ok := work["items"]; ok {
		work["items"] = cleanNode(items, true)
	}

	foldConstraintsIntoDescription(work)
	out := applyWhitelist(work)
	normalizeType(out, work)
	alignRequired(out)
	healHeuristically(out)

	return out
}

func mergeAllOf(m map[string]interface{}) {
	allOf, ok := m["allOf"].([]interface{})
	if !ok {
		return
	}
	mergedProps := map[string]interface{}{}
	var mergedRequired []string
	seenReq := map[string]bool{}

	if existing, ok := m["properties"].(map[string]interface{}); ok {
		for k, v := range existing {
			mergedProps[k] = v
		}
	}
	if existing, ok := m["required"].([]interface{}); ok {
		for _, r := range existing {
			if s, ok := r.(string); ok && !seenReq[s] {
				seenReq[s] = true
				mergedRequired = append(mergedRequired, s)
			}
		}
	}

	for _, branch := range allOf {
		bm, ok := branch.(map[string]interface{})
		if !ok {
			continue
		}
		if props, ok := bm["properties"].(map[string]interface{}); ok {
			for k, v := range props {
				if _, exists := mergedProps[k]; !exists {
					mergedProps[k] = v
				}
			}
		}
		if req, ok := bm["required"].([]interface{}); ok {
			for _, r := range req {
				if s, ok := r.(string); ok && !seenReq[s] {
					seenReq[s] = true
					mergedRequired = append(mergedRequired, s)
				}
			}
		}
	}

	delete(m, "allOf")
	if len(mergedProps) > 0 {
		m["properties"] = mergedProps
	}
	if len(mergedRequired) > 0 {
		reqIface := make([]interface{}, len(mergedRequired))
		for i, r := range mergedRequired {
			reqIface[i] = r
		}
		m["required"] = reqIface
	}
}

// healItemsOnObjectLike repairs the malformed-input pattern where a node
// looks like an object (has "properties" sibling absent but declares
// object type, or has both "type":"object" and "items") by moving "items"
// contents into "properties".
func healItemsOnObjectLike(m map[string]interface{}) {
	typ, _ := m["type"].(string)
	if typ != "object" {
		return
	}
	items, ok := m["items"]
	if !ok {
		return
	}
	itemsMap, ok := items.(map[string]interface{})
	if !ok {
		return
	}
	props, _ := m["properties"].(map[string]interface{})
	if props == nil {
		props = map[string]interface{}{}
	}
	if nested, ok := itemsMap["properties"].(map[string]interface{}); ok {
		for k, v := range nested {
			props[k] = v
		}
	} else {
		for k, v := range itemsMap {
			if k == "type" {
				continue
			}
			props[k] = v
		}
	}
	m["properties"] = props
	delete(m, "items")
}

// schemaTypeScore ranks anyOf/oneOf branches: object=3, array=2, scalar=1, null=0.
func schemaTypeScore(branch map[string]interface{}) int {
	typ, _ := branch["type"].(string)
	switch strings.ToLower(typ) {
	case "object":
		return 3
	case "array":
		return 2
	case "null":
		return 0
	case "":
		if _, ok := branch["properties"]; ok {
			return 3
		}
		if _, ok := branch["items"]; ok {
			return 2
		}
		return 1
	default:
		return 1
	}
}

func collapseUnion(m map[string]interface{}) {
	var branches []interface{}
	var key string
	if u, ok := m["anyOf"].([]interface{}); ok {
		branches, key = u, "anyOf"
	} else if u, ok := m["oneOf"].([]interface{}); ok {
		branches, key = u, "oneOf"
	} else {
		return
	}
	delete(m, key)
	if len(branches) == 0 {
		return
	}

	best := -1
	bestScore := -1
	typeNames := map[string]bool{}
	for i, b := range branches {
		bm, ok := b.(map[string]interface{})
		if !ok {
			continue
		}
		if typ, ok := bm["type"].(string); ok && typ != "" {
			typeNames[strings.ToLower(typ)] = true
		}
		score := schemaTypeScore(bm)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best >= 0 {
		if bm, ok := branches[best].(map[string]interface{}); ok {
			if props, ok := bm["properties"].(map[string]interface{}); ok {
				existing, _ := m["properties"].(map[string]interface{})
				if existing == nil {
					existing = map[string]interface{}{}
				}
				for k, v := range props {
					existing[k] = v
				}
				m["properties"] = existing
			}
			if req, ok := bm["required"].([]interface{}); ok {
				m["required"] = req
			}
			if typ, ok := bm["type"]; ok {
				if _, exists := m["type"]; !exists {
					m["type"] = typ
				}
			}
		}
	}

	nonNullTypes := make([]string, 0, len(typeNames))
	for t := range typeNames {
		if t != "null" {
			nonNullTypes = append(nonNullTypes, t)
		}
	}
	sort.Strings(nonNullTypes)
	if len(nonNullTypes) > 1 {
		appendHint(m, "Accepts: "+strings.Join(nonNullTypes, " | "))
	}
	if typeNames["null"] {
		appendHint(m, "(nullable)")
	}
}

func appendHint(m map[string]interface{}, hint string) {
	desc, _ := m["description"].(string)
	if desc == "" {
		m["description"] = hint
		return
	}
	m["description"] = desc + " " + hint
}

func foldConstraintsIntoDescription(m map[string]interface{}) {
	var parts []string
	for _, key := range constraintKeys {
		if v, ok := m[key]; ok {
			parts = append(parts, key+": "+stringifyScalar(v))
			delete(m, key)
		}
	}
	if len(parts) == 0 {
		return
	}
	appendHint(m, "[Constraint: "+strings.Join(parts, ", ")+"]")
}

func stringifyScalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func applyWhitelist(m map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range m {
		if whitelistedKeys[k] {
			out[k] = v
		}
	}
	return out
}

func normalizeType(out, original map[string]interface{}) {
	switch t := out["type"].(type) {
	case string:
		out["type"] = strings.ToLower(t)
	case []interface{}:
		var first string
		hadNull := false
		for _, entry := range t {
			s, _ := entry.(string)
			s = strings.ToLower(s)
			if s == "null" {
				hadNull = true
				continue
			}
			if first == "" {
				first = s
			}
		}
		if first != "" {
			out["type"] = first
		} else {
			delete(out, "type")
		}
		if hadNull {
			appendHint(out, "(nullable)")
		}
	}

	if _, hasType := out["type"]; !hasType {
		if _, ok := out["properties"]; ok {
			out["type"] = "object"
		} else if _, ok := out["items"]; ok {
			out["type"] = "array"
		} else if _, ok := out["enum"]; ok {
			out["type"] = "string"
		}
	}

	if enumVals, ok := out["enum"].([]interface{}); ok {
		coerced := make([]interface{}, len(enumVals))
		for i, v := range enumVals {
			coerced[i] = stringifyScalar(v)
			if s, ok := v.(string); ok {
				coerced[i] = s
			}
		}
		out["enum"] = coerced
	}
}

func alignRequired(out map[string]interface{}) {
	req, ok := out["required"].([]interface{})
	if !ok {
		return
	}
	props, _ := out["properties"].(map[string]interface{})
	var kept []interface{}
	for _, r := range req {
		name, _ := r.(string)
		if props != nil {
			if _, exists := props[name]; exists {
				kept = append(kept, r)
			}
		}
	}
	if len(kept) == 0 {
		delete(out, "required")
	} else {
		out["required"] = kept
	}
}

// healHeuristically handles nodes that look like schema fragments (have a
// description or title, say) but carry no recognized schema keyword at
// all — move every remaining key under "properties" and call it an object,
// same as the original's "doesn't look like a schema, but isn't a function
// payload either" fallback.
func healHeuristically(out map[string]interface{}) {
	_, hasType := out["type"]
	_, hasProps := out["properties"]
	_, hasItems := out["items"]
	_, hasEnum := out["enum"]
	if hasType || hasProps || hasItems || hasEnum {
		return
	}
	if len(out) == 0 {
		return
	}
	props := map[string]interface{}{}
	for k, v := range out {
		if k == "description" || k == "title" {
			continue
		}
		props[k] = v
		delete(out, k)
	}
	if len(props) > 0 {
		out["properties"] = props
		out["type"] = "object"
	}
}
