// Package tool holds the catalog of actions the agent can invoke.
package tool

import (
	"context"
	"sort"
)

// Action executes a tool with decoded arguments and returns its textual result.
type Action func(ctx context.Context, args map[string]any) (string, error)

// Param describes one named tool parameter.
type Param struct {
	Type        string `json:"type"` // JSON Schema type: "string", "integer", "number", "boolean", "object", "array"
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Schema maps parameter names to their descriptions.
type Schema map[string]Param

// RequiredNames returns the required parameter names, sorted.
func (s Schema) RequiredNames() []string {
	var names []string
	for name, p := range s {
		if p.Required {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// JSONSchema renders the schema as a JSON Schema object.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s))
	for name, p := range s {
		prop := map[string]any{"type": p.Type}
		if p.Type == "" {
			prop["type"] = "string"
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[name] = prop
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if req := s.RequiredNames(); len(req) > 0 {
		out["required"] = req
	} else {
		out["required"] = []string{}
	}
	return out
}

// Spec is a registered tool.
type Spec struct {
	Name        string
	Description string
	Params      Schema
	Action      Action
}
