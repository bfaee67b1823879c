package tools

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// MCP tool naming. The wire form is mcp:<server>:<tool>; providers that
// forbid colons in tool names (Gemini, Azure, OpenAI) get the sanitized
// form mcp__<server>__<tool>. Parsing accepts both.
const (
	mcpColonPrefix      = "mcp:"
	mcpUnderscorePrefix = "mcp__"
)

const maxSegmentLen = 64

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateSegment enforces the naming rules on a server or tool name
// segment: non-empty, at most 64 characters, limited to [A-Za-z0-9_-].
// Everything else — control characters, slashes, shell metacharacters,
// non-ASCII — is rejected by the whitelist.
func ValidateSegment(segment string) error {
	if segment == "" {
		return fmt.Errorf("name segment is empty")
	}
	if len(segment) > maxSegmentLen {
		return fmt.Errorf("name segment exceeds %d characters", maxSegmentLen)
	}
	if !segmentPattern.MatchString(segment) {
		return fmt.Errorf("name segment %q contains disallowed characters", segment)
	}
	return nil
}

// WireName namespaces an MCP tool for internal bookkeeping.
func WireName(server, tool string) string {
	return mcpColonPrefix + server + ":" + tool
}

// ProviderName converts any tool name to the form accepted by providers
// that forbid colons.
func ProviderName(name string) string {
	return strings.ReplaceAll(name, ":", "__")
}

// IsMCPName reports whether the name is in either MCP namespace form.
func IsMCPName(name string) bool {
	return strings.HasPrefix(name, mcpColonPrefix) || strings.HasPrefix(name, mcpUnderscorePrefix)
}

// ParseMCPName splits a namespaced tool name into (server, tool). The
// server is the first segment after the prefix; the remainder is the tool
// name and may itself contain further separators.
func ParseMCPName(name string) (server, tool string, err error) {
	var rest, sep string
	switch {
	case strings.HasPrefix(name, mcpColonPrefix):
		rest, sep = name[len(mcpColonPrefix):], ":"
	case strings.HasPrefix(name, mcpUnderscorePrefix):
		rest, sep = name[len(mcpUnderscorePrefix):], "__"
	default:
		return "", "", fmt.Errorf("tool name %q is not in the MCP namespace", name)
	}

	idx := strings.Index(rest, sep)
	if idx <= 0 || idx == len(rest)-len(sep) {
		return "", "", fmt.Errorf("tool name %q is missing a server or tool segment", name)
	}
	return rest[:idx], rest[idx+len(sep):], nil
}

// ── JSON Schema translation ─────────────────────────────────

// Property keys that enable prototype pollution in downstream consumers.
var forbiddenKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// MCPToolDecl is an external tool as declared by an MCP server.
type MCPToolDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ConvertMCPTool validates and namespaces one declared tool and translates
// its JSON Schema into the internal parameter representation.
func ConvertMCPTool(server string, decl MCPToolDecl) (Tool, error) {
	if err := ValidateSegment(server); err != nil {
		return Tool{}, fmt.Errorf("invalid server name: %w", err)
	}
	if err := ValidateSegment(decl.Name); err != nil {
		return Tool{}, fmt.Errorf("invalid tool name: %w", err)
	}

	params, err := ConvertSchema(decl.InputSchema)
	if err != nil {
		return Tool{}, fmt.Errorf("converting schema for %s/%s: %w", server, decl.Name, err)
	}

	return Tool{
		Name:        WireName(server, decl.Name),
		Description: decl.Description,
		Params:      params,
	}, nil
}

// ConvertSchema translates a JSON Schema fragment into a Param tree. A nil
// schema yields an empty object.
func ConvertSchema(schema map[string]any) (*Param, error) {
	if schema == nil {
		return obj(map[string]*Param{}), nil
	}
	return convertNode(schema, "")
}

func convertNode(schema map[string]any, path string) (*Param, error) {
	p := &Param{}
	if desc, ok := schema["description"].(string); ok {
		p.Description = desc
	}

	// enum wins over type: a closed set is a closed set.
	if enum, ok := schema["enum"].([]any); ok {
		p.Kind = KindEnum
		p.Enum = enum
		return p, nil
	}

	if arms, ok := unionArms(schema); ok {
		return convertUnion(arms, path, p)
	}

	typ, _ := schema["type"].(string)
	switch typ {
	case "string":
		p.Kind = KindString
	case "number":
		p.Kind = KindNumber
	case "integer":
		p.Kind = KindInteger
	case "boolean":
		p.Kind = KindBoolean
	case "null":
		p.Kind = KindNull
	case "object", "":
		return convertObject(schema, path, p)
	case "array":
		p.Kind = KindArray
		if items, ok := schema["items"].(map[string]any); ok {
			item, err := convertNode(items, path+"[]")
			if err != nil {
				return nil, err
			}
			p.Items = item
		} else {
			p.Items = &Param{Kind: KindUnknown}
		}
	default:
		log.Warn().Str("type", typ).Str("path", path).Msg("unknown schema type, degrading to unknown")
		p.Kind = KindUnknown
	}
	return p, nil
}

func convertObject(schema map[string]any, path string, p *Param) (*Param, error) {
	if _, hasProps := schema["properties"]; !hasProps {
		if _, hasType := schema["type"]; !hasType {
			// Neither type nor properties: nothing to go on.
			log.Warn().Str("path", path).Msg("schema node without type, degrading to unknown")
			p.Kind = KindUnknown
			return p, nil
		}
	}

	p.Kind = KindObject
	p.Properties = map[string]*Param{}

	required := map[string]bool{}
	if reqs, ok := schema["required"].([]any); ok {
		for _, r := range reqs {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for key, raw := range props {
		if forbiddenKeys[key] {
			return nil, fmt.Errorf("forbidden property key %q at %s", key, path)
		}
		child, ok := raw.(map[string]any)
		if !ok {
			log.Warn().Str("key", key).Str("path", path).Msg("non-object property schema, degrading to unknown")
			p.Properties[key] = &Param{Kind: KindUnknown, Optional: !required[key]}
			continue
		}
		converted, err := convertNode(child, path+"."+key)
		if err != nil {
			return nil, err
		}
		converted.Optional = !required[key]
		p.Properties[key] = converted
	}
	return p, nil
}

// unionArms extracts anyOf/oneOf arms when present.
func unionArms(schema map[string]any) ([]any, bool) {
	if arms, ok := schema["anyOf"].([]any); ok {
		return arms, true
	}
	if arms, ok := schema["oneOf"].([]any); ok {
		return arms, true
	}
	return nil, false
}

// convertUnion reduces a union to an enum when every arm is a literal
// (const or single-value enum); otherwise it keeps the arms as a union.
func convertUnion(arms []any, path string, p *Param) (*Param, error) {
	var literals []any
	allLiteral := true
	for _, raw := range arms {
		arm, ok := raw.(map[string]any)
		if !ok {
			allLiteral = false
			break
		}
		if v, ok := arm["const"]; ok {
			literals = append(literals, v)
			continue
		}
		if enum, ok := arm["enum"].([]any); ok && len(enum) == 1 {
			literals = append(literals, enum[0])
			continue
		}
		allLiteral = false
		break
	}

	if allLiteral && len(literals) > 0 {
		p.Kind = KindEnum
		p.Enum = literals
		return p, nil
	}

	p.Kind = KindUnion
	for i, raw := range arms {
		arm, ok := raw.(map[string]any)
		if !ok {
			log.Warn().Str("path", path).Int("arm", i).Msg("non-object union arm, degrading to unknown")
			p.Arms = append(p.Arms, &Param{Kind: KindUnknown})
			continue
		}
		converted, err := convertNode(arm, fmt.Sprintf("%s|%d", path, i))
		if err != nil {
			return nil, err
		}
		p.Arms = append(p.Arms, converted)
	}
	return p, nil
}
