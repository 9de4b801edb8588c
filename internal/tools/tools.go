// Package tools defines the tool descriptors seibot offers the model,
// the tagged result type all tool executions normalize into, and the
// local client tools executed in-process.
package tools

import "github.com/tranminh/seibot/internal/llm"

// Origin identifies where a tool executes.
type Origin int

const (
	// OriginLocalClient tools run in-process (table and QR rendering).
	OriginLocalClient Origin = iota

	// OriginLocalServer tools run inside the model API itself
	// (the web_search server tool).
	OriginLocalServer

	// OriginExternal tools run on an MCP server via the bridge.
	OriginExternal
)

// Descriptor advertises a callable capability to the model.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
	Origin      Origin

	// Type and MaxUses are set only for server tools, which the model
	// API executes itself (e.g. web_search_20250305).
	Type    string
	MaxUses int
}

// ToLLM converts descriptors to the wire-level tool list.
func ToLLM(ds []Descriptor) []llm.Tool {
	if len(ds) == 0 {
		return nil
	}
	out := make([]llm.Tool, 0, len(ds))
	for _, d := range ds {
		t := llm.Tool{
			Name:        d.Name,
			Description: d.Description,
			Type:        d.Type,
			MaxUses:     d.MaxUses,
		}
		if d.Type == "" {
			schema := d.InputSchema
			if schema == nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			t.InputSchema = schema
		}
		out = append(out, t)
	}
	return out
}
