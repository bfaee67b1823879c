package tools

import "sort"

// Schema renders a Param tree back into plain JSON Schema for provider wire
// formats. Union arms become anyOf; unknown nodes become an unconstrained
// schema.
func Schema(p *Param) map[string]any {
	if p == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	out := map[string]any{}
	if p.Description != "" {
		out["description"] = p.Description
	}

	switch p.Kind {
	case KindString, KindNumber, KindInteger, KindBoolean, KindNull:
		out["type"] = string(p.Kind)
	case KindEnum:
		out["enum"] = p.Enum
	case KindArray:
		out["type"] = "array"
		out["items"] = Schema(p.Items)
	case KindObject:
		props := map[string]any{}
		var required []string
		for name, child := range p.Properties {
			props[name] = Schema(child)
			if !child.Optional {
				required = append(required, name)
			}
		}
		out["type"] = "object"
		out["properties"] = props
		if len(required) > 0 {
			sort.Strings(required)
			out["required"] = required
		}
	case KindUnion:
		arms := make([]map[string]any, 0, len(p.Arms))
		for _, arm := range p.Arms {
			arms = append(arms, Schema(arm))
		}
		out["anyOf"] = arms
	}
	return out
}
