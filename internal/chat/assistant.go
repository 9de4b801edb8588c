// Package chat implements the conversational loop: intent gates, the
// two-pass tool orchestration against the model, session commit, and
// compaction. One Respond call costs at most two model calls (three
// counting a summarization).
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tranminh/seibot/internal/llm"
	"github.com/tranminh/seibot/internal/session"
	"github.com/tranminh/seibot/internal/tools"
)

const personaPrompt = `You are a helpful assistant specialized in the SEI blockchain.
MCP here means Model Context Protocol.
You have access to MCP tools for live SEI data. Prefer MCP tools over browsing. Do NOT say "I don't have a direct connection" — if a tool is needed, CALL it; if a tool fails, state which tool failed and why.
When tabular data helps, call a PNG-rendering tool (e.g. make_table_image or an MCP tool that outputs images). Do not print ASCII/Markdown tables.`

const summarizePrompt = "Summarize briefly the conversation so far; keep key facts and open items."

// toolPreviewLimit caps how many external tools the system prompt lists.
const toolPreviewLimit = 16

// quickMenuLimit caps the generic-request tool menu.
const quickMenuLimit = 10

// Bridge is the external tool surface the loop consumes.
type Bridge interface {
	Catalog() []tools.Descriptor
	IsKnown(name string) bool
	Invoke(ctx context.Context, name string, args map[string]any) tools.Result
	FindImageTableTool() string
}

// ClientToolRunner executes local client tools.
type ClientToolRunner interface {
	Run(name string, args json.RawMessage) (tools.Result, bool)
}

// Normalizer cleans the synthesized text before it is returned.
type Normalizer interface {
	Run(ctx context.Context, text string, images []string) (string, []string)
}

// Options tune the loop. Zero values take the defaults below.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64

	// Compaction: once turns exceed MaxTurns, the last TranscriptWindow
	// turns are summarized and turns are truncated to KeepTurns.
	MaxTurns         int
	KeepTurns        int
	TranscriptWindow int
	SummaryMaxTokens int
}

func (o *Options) setDefaults() {
	if o.MaxTokens == 0 {
		o.MaxTokens = 8000
	}
	if o.Temperature == 0 {
		o.Temperature = 0.7
	}
	if o.MaxTurns == 0 {
		o.MaxTurns = 14
	}
	if o.KeepTurns == 0 {
		o.KeepTurns = 6
	}
	if o.TranscriptWindow == 0 {
		o.TranscriptWindow = 40
	}
	if o.SummaryMaxTokens == 0 {
		o.SummaryMaxTokens = 512
	}
}

// Reply is the outcome of one turn.
type Reply struct {
	Text   string
	Images []string
}

// Assistant is the orchestrator. Callers must not issue overlapping
// Respond calls for the same session key.
type Assistant struct {
	llm        llm.Client
	bridge     Bridge
	store      session.Store
	runner     ClientToolRunner
	normalizer Normalizer
	retry      llm.RetryPolicy
	opts       Options
	logger     *slog.Logger
}

// New wires an assistant.
func New(client llm.Client, bridge Bridge, store session.Store, runner ClientToolRunner, normalizer Normalizer, opts Options, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	opts.setDefaults()
	return &Assistant{
		llm:        client,
		bridge:     bridge,
		store:      store,
		runner:     runner,
		normalizer: normalizer,
		retry:      llm.DefaultRetryPolicy(),
		opts:       opts,
		logger:     logger.With("component", "chat"),
	}
}

// Reset clears the session.
func (a *Assistant) Reset(ctx context.Context, sessionID string) error {
	return a.store.Clear(ctx, sessionID)
}

// Respond runs one full turn. On a hard model failure the error is
// returned and the session is left uncommitted, so retrying the whole
// request is safe.
func (a *Assistant) Respond(ctx context.Context, sessionID, message string) (*Reply, error) {
	sess, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	external := a.bridge.Catalog()

	// Meta-question: answered from memory, zero model calls.
	if isLastQuestionQuery(message) {
		if last := sess.LastUserText(); last != "" {
			return &Reply{Text: fmt.Sprintf("You just asked: %q.", last)}, nil
		}
		return &Reply{Text: "I don't see a previous question in this chat yet."}, nil
	}

	// Generic "use the tools" request with no concrete task: run a
	// default status tool or offer a menu, no model call.
	if isGenericToolRequest(message) && len(external) > 0 {
		reply := a.handleGenericToolRequest(ctx, external)
		if err := a.commit(ctx, sessionID, sess, message, reply.Text); err != nil {
			return nil, err
		}
		return reply, nil
	}

	mentioned := mentionedTool(message, external)
	gates := computeGates(message, mentioned)

	local := []tools.Descriptor{tools.WebSearch(), tools.MakeTableImage(), tools.MakeQRImage()}
	catalog := tools.Assemble(local, external, gates)
	catalog = forceInclude(catalog, external, mentioned)

	systemText := a.systemText(sess.Summary, external)
	history := toMessages(sess.Turns)
	userMsg := llm.UserText(message)

	// First pass: blocking, with the assembled catalog.
	firstReq := llm.Request{
		Model:       a.opts.Model,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
		System:      systemText,
		Messages:    append(append([]llm.Message{}, history...), userMsg),
		Tools:       tools.ToLLM(catalog),
	}
	var first *llm.Response
	err = a.retry.Do(ctx, a.logger, func() error {
		var callErr error
		first, callErr = a.llm.Messages(ctx, firstReq)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("first model pass: %w", err)
	}

	images, toolResults := a.executeToolUses(ctx, first.ToolUses())

	finalText := first.Text()
	if len(toolResults) > 0 {
		finalText = a.secondPass(ctx, firstReq, first, toolResults, gates, finalText)
	}

	finalText, images = a.normalizer.Run(ctx, finalText, images)

	if err := a.commit(ctx, sessionID, sess, message, finalText); err != nil {
		return nil, err
	}
	return &Reply{Text: finalText, Images: images}, nil
}

// executeToolUses runs every proposed tool call in input order: local
// client tools in-process, external tools via the bridge. Every
// outcome becomes a correlated tool_result; nothing raises.
func (a *Assistant) executeToolUses(ctx context.Context, uses []llm.ContentBlock) ([]string, []llm.ContentBlock) {
	var images []string
	var results []llm.ContentBlock
	for _, tu := range uses {
		res, ok := a.runTool(ctx, tu)
		if !ok {
			continue
		}
		if res.IsImage() {
			images = append(images, res.Path)
		}
		results = append(results, llm.ToolResultBlock(tu.ID, res.Payload(), res.IsError()))
		a.logger.Debug("tool executed", "tool", tu.Name, "kind_error", res.IsError())
	}
	return images, results
}

// runTool resolves one tool_use. Server tools (web search) execute
// inside the API and produce no local result.
func (a *Assistant) runTool(ctx context.Context, tu llm.ContentBlock) (tools.Result, bool) {
	args, err := json.Marshal(tu.Input)
	if err != nil {
		return tools.Errorf("%s: bad arguments: %v", tu.Name, err), true
	}
	if res, handled := a.runner.Run(tu.Name, args); handled {
		return res, true
	}
	if a.bridge.IsKnown(tu.Name) {
		return a.bridge.Invoke(ctx, tu.Name, tu.Input), true
	}
	if tu.Name == "web_search" {
		return tools.Result{}, false
	}
	return tools.Errorf("unknown tool: %s", tu.Name), true
}

// secondPass replays the conversation with the tool results folded in
// and streams the answer. Stream failures retry under the overload
// policy and finally fall back to a blocking call; an empty synthesis
// falls back to the first pass's text.
func (a *Assistant) secondPass(ctx context.Context, firstReq llm.Request, first *llm.Response, toolResults []llm.ContentBlock, gates tools.Gates, fallback string) string {
	req := firstReq
	req.Messages = append(append([]llm.Message{}, firstReq.Messages...),
		llm.Message{Role: "assistant", Content: first.Content},
		llm.Message{Role: "user", Content: toolResults},
	)
	// Tools stay off for synthesis unless the search gate is still open.
	req.Tools = nil
	if gates.NeedWebSearch {
		req.Tools = tools.ToLLM([]tools.Descriptor{tools.WebSearch()})
	}

	var streamed string
	err := a.retry.Do(ctx, a.logger, func() error {
		var streamErr error
		streamed, streamErr = a.llm.StreamText(ctx, req, nil)
		return streamErr
	})
	if err != nil {
		a.logger.Warn("streaming synthesis failed, falling back to blocking call", "error", err)
		var resp *llm.Response
		err = a.retry.Do(ctx, a.logger, func() error {
			var callErr error
			resp, callErr = a.llm.Messages(ctx, req)
			return callErr
		})
		if err != nil {
			a.logger.Error("second model pass failed", "error", err)
			return fallback
		}
		streamed = resp.Text()
	}

	if text := strings.TrimSpace(streamed); text != "" {
		return text
	}
	return fallback
}

// handleGenericToolRequest either calls the best default status tool or
// builds a quick menu of available tools.
func (a *Assistant) handleGenericToolRequest(ctx context.Context, external []tools.Descriptor) *Reply {
	if name := pickDefaultStatusTool(external); name != "" {
		res := a.bridge.Invoke(ctx, name, map[string]any{})
		if res.IsImage() {
			return &Reply{Images: []string{res.Path}}
		}
		text := res.Text
		if text == "" {
			text = fmt.Sprintf("Called tool: %s", name)
		}
		return &Reply{Text: text}
	}

	var b strings.Builder
	b.WriteString("The tool servers are connected. A few things you can ask for right away:\n")
	for i, d := range external {
		if i == quickMenuLimit {
			break
		}
		b.WriteString("• " + d.Name)
		if desc := strings.TrimSpace(d.Description); desc != "" {
			b.WriteString(": " + desc)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nFor example:\n")
	b.WriteString("- \"Check the SEI network status.\"\n")
	b.WriteString("- \"Get the balance of wallet <address>.\"\n")
	b.WriteString("- \"Look up the most recent transaction for <address>.\"")
	return &Reply{Text: b.String()}
}

// systemText builds the system instruction: persona, then the running
// summary, then a preview of the available external tools.
func (a *Assistant) systemText(summary string, external []tools.Descriptor) string {
	var b strings.Builder
	b.WriteString(personaPrompt)
	if summary != "" {
		b.WriteString("\n\n[Conversation summary]\n")
		b.WriteString(summary)
	}
	if len(external) > 0 {
		b.WriteString("\n\n[Available MCP tools]\n")
		for i, d := range external {
			if i == toolPreviewLimit {
				break
			}
			b.WriteString("- " + d.Name)
			if desc := strings.TrimSpace(d.Description); desc != "" {
				b.WriteString(": " + desc)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// forceInclude appends an explicitly mentioned external tool that the
// gate policies filtered out.
func forceInclude(catalog []tools.Descriptor, external []tools.Descriptor, mentioned string) []tools.Descriptor {
	if mentioned == "" {
		return catalog
	}
	for _, d := range catalog {
		if strings.EqualFold(d.Name, mentioned) {
			return catalog
		}
	}
	for _, d := range external {
		if d.Name == mentioned {
			return append(catalog, d)
		}
	}
	return catalog
}

// toMessages converts stored turns to wire messages.
func toMessages(turns []session.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		msg := llm.Message{Role: t.Role}
		for _, seg := range t.Segments {
			msg.Content = append(msg.Content, llm.TextBlock(seg.Text))
		}
		out = append(out, msg)
	}
	return out
}
