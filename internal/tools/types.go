// Package tools defines the gateway's tool surface: the internal catalog
// exposed to AI providers, its read-only and web-search filters, and the
// converter that folds externally-declared MCP tools into the same shape.
package tools

import "context"

// Kind enumerates the parameter AST node types. The AST is a deliberately
// small subset of JSON Schema: enough for every internal tool and for
// anything a well-behaved MCP server declares.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindEnum    Kind = "enum"
	KindUnion   Kind = "union"
	KindNull    Kind = "null"
	KindUnknown Kind = "unknown"
)

// Param is one node of a tool's parameter schema.
type Param struct {
	Kind        Kind              `json:"kind"`
	Description string            `json:"description,omitempty"`
	Optional    bool              `json:"optional,omitempty"`
	Properties  map[string]*Param `json:"properties,omitempty"` // object
	Items       *Param            `json:"items,omitempty"`      // array
	Enum        []any             `json:"enum,omitempty"`       // enum
	Arms        []*Param          `json:"arms,omitempty"`       // union
}

// Handler executes a tool call. Results are folded back into the
// conversation; errors become in-band tool errors, never stream faults.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a single named capability offered to the model.
type Tool struct {
	Name        string
	Description string
	Params      *Param
	Handler     Handler
}

// Convenience constructors keep the group definitions readable.

func obj(props map[string]*Param) *Param {
	return &Param{Kind: KindObject, Properties: props}
}

func str(desc string) *Param {
	return &Param{Kind: KindString, Description: desc}
}

func optStr(desc string) *Param {
	return &Param{Kind: KindString, Description: desc, Optional: true}
}

func optBool(desc string) *Param {
	return &Param{Kind: KindBoolean, Description: desc, Optional: true}
}

func optInt(desc string) *Param {
	return &Param{Kind: KindInteger, Description: desc, Optional: true}
}
