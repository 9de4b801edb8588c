package tools

import "strings"

// Gates are the per-turn heuristic signals that shape the catalog.
type Gates struct {
	// NeedLiveData reports the turn looks like an on-chain query.
	NeedLiveData bool

	// NeedWebSearch reports the turn looks like it wants recent or
	// off-chain information.
	NeedWebSearch bool

	// NeedDocs reports the turn looks like a documentation question.
	NeedDocs bool
}

// docKeywords flag documentation-search tools by name or description.
var docKeywords = []string{"doc", "documentation", "api reference", "sdk"}

// Assemble computes the tool catalog offered to the model for one turn.
// Local tools come first, then external. Policies:
//
//   - web_search is offered only when the search gate is open, and is
//     suppressed when external tools exist and the turn needs live
//     data, so the model does not prefer a weaker fallback.
//   - documentation-search tools are suppressed unless the docs gate
//     is open.
//   - names are unique case-insensitively, first occurrence wins, and
//     nameless entries are dropped.
func Assemble(local, external []Descriptor, gates Gates) []Descriptor {
	suppressSearch := !gates.NeedWebSearch || (len(external) > 0 && gates.NeedLiveData)

	out := make([]Descriptor, 0, len(local)+len(external))
	seen := make(map[string]bool, len(local)+len(external))

	add := func(d Descriptor) {
		if d.Name == "" {
			return
		}
		key := strings.ToLower(d.Name)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, d)
	}

	for _, d := range local {
		if d.Origin == OriginLocalServer && suppressSearch {
			continue
		}
		add(d)
	}
	for _, d := range external {
		if !gates.NeedDocs && isDocTool(d) {
			continue
		}
		add(d)
	}
	return out
}

// isDocTool reports whether a descriptor looks like a documentation
// search tool.
func isDocTool(d Descriptor) bool {
	name := strings.ToLower(d.Name)
	desc := strings.ToLower(d.Description)
	for _, kw := range docKeywords {
		if strings.Contains(name, kw) || strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}
