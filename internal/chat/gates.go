package chat

import (
	"strings"

	"github.com/tranminh/seibot/internal/tools"
)

// The intent gates are best-effort keyword classifiers, kept as
// package-level policy tables so they can be tuned (or replaced with a
// real classifier) without touching the loop.

// liveDataKeywords mark a message as an on-chain query.
var liveDataKeywords = []string{
	"sei1", "0x",
	"transaction", " tx", "tx ", "hash", "block", "height",
	"stake", "staking", "unstake", "delegat", "validator",
	"wallet", "balance", "chain", "epoch", "gas", "on-chain", "onchain",
	"mcp",
}

// recencyKeywords mark a message as wanting fresh off-chain information.
var recencyKeywords = []string{
	"news", "latest", "today", "recent", "current", "now",
	"price", "market", "announce", "update", "this week", "yesterday",
}

// noSearchKeywords opt a message out of web search explicitly.
var noSearchKeywords = []string{
	"don't search", "do not search", "no search", "without search", "no web",
}

// docsKeywords mark a message as a documentation question.
var docsKeywords = []string{
	"docs", "documentation", "api", "sdk", "reference",
	"endpoint", "tutorial", "guide", "how do i",
}

// lastQuestionTriggers match the meta-question answered straight from
// memory.
var lastQuestionTriggers = []string{
	"what did i just ask",
	"what was my last question",
	"last question",
	"previous question",
}

// genericMCPTriggers match a request to use the tool servers with no
// concrete task attached.
var genericMCPTriggers = []string{
	"mcp", "sei mcp", "connect mcp", "connect to mcp", "connect sei", "use mcp",
}

// defaultStatusPriorities orders the keywords used to pick a default
// tool for a generic request, most informative first.
var defaultStatusPriorities = []string{
	"status", "network", "info", "health", "ping",
	"chain", "height", "latest", "block",
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// computeGates evaluates the three tool gates for a message. An
// explicit tool mention forces the live-data gate open.
func computeGates(message string, mentionedTool string) tools.Gates {
	q := strings.ToLower(message)
	return tools.Gates{
		NeedLiveData:  mentionedTool != "" || containsAny(q, liveDataKeywords),
		NeedWebSearch: containsAny(q, recencyKeywords) && !containsAny(q, noSearchKeywords),
		NeedDocs:      containsAny(q, docsKeywords),
	}
}

// isLastQuestionQuery reports whether the message asks what the user
// just asked.
func isLastQuestionQuery(message string) bool {
	return containsAny(strings.ToLower(strings.TrimSpace(message)), lastQuestionTriggers)
}

// isGenericToolRequest reports whether the message asks to use the tool
// servers without naming a concrete task (no address, tx, or hash in
// sight).
func isGenericToolRequest(message string) bool {
	q := strings.ToLower(message)
	if !containsAny(q, genericMCPTriggers) {
		return false
	}
	hasSpecific := strings.Contains(q, "sei1") ||
		(strings.Contains(q, "0x") && len(q) >= 8) ||
		(strings.Contains(q, "tx") && len(q) >= 6)
	return !hasSpecific
}

// mentionedTool returns the name of the first catalog tool the message
// names, matched with or without its server prefix, or "".
func mentionedTool(message string, external []tools.Descriptor) string {
	q := strings.ToLower(message)
	for _, d := range external {
		name := strings.ToLower(d.Name)
		if name == "" {
			continue
		}
		if strings.Contains(q, name) {
			return d.Name
		}
		// Without the <server>_ prefix, e.g. "get_chain_info".
		if _, bare, ok := strings.Cut(name, "_"); ok && bare != "" && strings.Contains(q, bare) {
			return d.Name
		}
	}
	return ""
}

// pickDefaultStatusTool chooses the tool to run for a generic request,
// scanning the priority keywords against names and descriptions.
func pickDefaultStatusTool(external []tools.Descriptor) string {
	for _, kw := range defaultStatusPriorities {
		for _, d := range external {
			name := strings.ToLower(d.Name)
			desc := strings.ToLower(d.Description)
			if strings.Contains(name, kw) || strings.Contains(desc, kw) {
				return d.Name
			}
		}
	}
	return ""
}
