package schema

// Hook is a pre/post adapter for a tool whose declared schema needs
// tool-specific repair before or after the generic cleaning pass. Grounded
// on the original source's TOOL_ADAPTERS registry and its PencilAdapter
// entry (json_schema.rs); spec §9 Open Question #2 leaves extensibility
// unspecified, so this registry is compile-time (a package-level map
// populated by RegisterAdapter calls in init), matching how the original
// wires its single known adapter.
type Hook func(interface{}) interface{}

var (
	adapterPre  = map[string]Hook{}
	adapterPost = map[string]Hook{}
)

// RegisterAdapter installs a pre and/or post hook for toolName. A nil hook
// means "no-op" for that stage.
func RegisterAdapter(toolName string, pre, post Hook) {
	if pre != nil {
		adapterPre[toolName] = pre
	}
	if post != nil {
		adapterPost[toolName] = post
	}
}

func init() {
	// "pencil" is the one adapter named in the original source: some
	// clients send its draw-tool schema with the coordinates nested one
	// level too deep under a "position" wrapper that the generic cleaner
	// has no way to know is optional. Flatten it before the generic pass
	// sees it.
	RegisterAdapter("pencil", pencilPre, nil)
}

func pencilPre(input interface{}) interface{} {
	m, ok := input.(map[string]interface{})
	if !ok {
		return input
	}
	props, ok := m["properties"].(map[string]interface{})
	if !ok {
		return input
	}
	position, ok := props["position"].(map[string]interface{})
	if !ok {
		return input
	}
	nestedProps, ok := position["properties"].(map[string]interface{})
	if !ok {
		return input
	}
	out := map[string]interface{}{}
	for k, v := range m {
		out[k] = v
	}
	mergedProps := map[string]interface{}{}
	for k, v := range props {
		if k == "position" {
			continue
		}
		mergedProps[k] = v
	}
	for k, v := range nestedProps {
		mergedProps[k] = v
	}
	out["properties"] = mergedProps
	return out
}
