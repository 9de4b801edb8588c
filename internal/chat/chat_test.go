package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tranminh/seibot/internal/llm"
	"github.com/tranminh/seibot/internal/session"
	"github.com/tranminh/seibot/internal/tools"
)

// fakeLLM serves scripted responses and counts calls.
type fakeLLM struct {
	msgReqs    []llm.Request
	streamReqs []llm.Request
	responses  []*llm.Response
	msgErr     error
	streamText string
	streamErr  error
}

func (f *fakeLLM) Messages(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.msgReqs = append(f.msgReqs, req)
	if f.msgErr != nil {
		return nil, f.msgErr
	}
	if len(f.responses) == 0 {
		return &llm.Response{Content: []llm.ContentBlock{llm.TextBlock("scripted")}}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeLLM) StreamText(_ context.Context, req llm.Request, _ func(string)) (string, error) {
	f.streamReqs = append(f.streamReqs, req)
	return f.streamText, f.streamErr
}

func (f *fakeLLM) totalCalls() int {
	return len(f.msgReqs) + len(f.streamReqs)
}

// fakeBridge serves a fixed catalog.
type fakeBridge struct {
	catalog []tools.Descriptor
	invoked []string
	result  tools.Result
}

func (f *fakeBridge) Catalog() []tools.Descriptor { return f.catalog }

func (f *fakeBridge) IsKnown(name string) bool {
	for _, d := range f.catalog {
		if d.Name == name {
			return true
		}
	}
	return false
}

func (f *fakeBridge) Invoke(_ context.Context, name string, _ map[string]any) tools.Result {
	f.invoked = append(f.invoked, name)
	return f.result
}

func (f *fakeBridge) FindImageTableTool() string { return "" }

// fakeRunner handles configured local tools.
type fakeRunner struct {
	handled map[string]tools.Result
	calls   []string
}

func (f *fakeRunner) Run(name string, _ json.RawMessage) (tools.Result, bool) {
	res, ok := f.handled[name]
	if !ok {
		return tools.Result{}, false
	}
	f.calls = append(f.calls, name)
	return res, true
}

// passNormalizer returns its input untouched.
type passNormalizer struct{}

func (passNormalizer) Run(_ context.Context, text string, images []string) (string, []string) {
	return text, images
}

func newTestAssistant(client *fakeLLM, bridge *fakeBridge, runner *fakeRunner) (*Assistant, *session.MemStore) {
	store := session.NewMemStore()
	if bridge == nil {
		bridge = &fakeBridge{}
	}
	if runner == nil {
		runner = &fakeRunner{}
	}
	a := New(client, bridge, store, runner, passNormalizer{},
		Options{Model: "claude-test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return a, store
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Content: []llm.ContentBlock{llm.TextBlock(text)}}
}

func TestPlainQuestionSingleModelCall(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{textResponse("SEI is a layer-1 blockchain.")}}
	a, store := newTestAssistant(client, nil, nil)

	reply, err := a.Respond(context.Background(), "chat-1", "what is SEI?")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Text != "SEI is a layer-1 blockchain." || len(reply.Images) != 0 {
		t.Fatalf("reply = %+v", reply)
	}
	if client.totalCalls() != 1 {
		t.Errorf("model calls = %d, want 1", client.totalCalls())
	}

	sess, _ := store.Get(context.Background(), "chat-1")
	if len(sess.Turns) != 2 || sess.Turns[0].Role != "user" || sess.Turns[1].Role != "assistant" {
		t.Errorf("committed turns = %+v", sess.Turns)
	}
}

func TestLastQuestionAnsweredFromMemory(t *testing.T) {
	client := &fakeLLM{}
	a, store := newTestAssistant(client, nil, nil)
	store.Save(context.Background(), "chat-1", &session.Session{Turns: []session.Turn{
		session.UserTurn("What is the current validator count?"),
		session.AssistantTurn("97."),
	}})

	reply, err := a.Respond(context.Background(), "chat-1", "what did I just ask?")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !strings.Contains(reply.Text, "What is the current validator count?") {
		t.Errorf("reply = %q", reply.Text)
	}
	if len(reply.Images) != 0 {
		t.Errorf("images = %v", reply.Images)
	}
	if client.totalCalls() != 0 {
		t.Errorf("model calls = %d, want 0", client.totalCalls())
	}

	sess, _ := store.Get(context.Background(), "chat-1")
	if len(sess.Turns) != 2 {
		t.Errorf("meta-question was committed: %+v", sess.Turns)
	}
}

func TestTableRequestRendersImage(t *testing.T) {
	first := &llm.Response{Content: []llm.ContentBlock{
		llm.TextBlock("Rendering a table."),
		{
			Type: "tool_use", ID: "toolu_1", Name: "make_table_image",
			Input: map[string]any{
				"columns": []any{"Token", "Price"},
				"rows":    []any{[]any{"SEI", "$0.45"}},
			},
		},
	}}
	client := &fakeLLM{responses: []*llm.Response{first}, streamText: "Here are the prices."}
	runner := &fakeRunner{handled: map[string]tools.Result{
		"make_table_image": tools.Image("/tmp/out/table.png"),
	}}
	a, _ := newTestAssistant(client, nil, runner)

	reply, err := a.Respond(context.Background(), "chat-1", "show me a table of 3 tokens and their prices")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(reply.Images) != 1 || reply.Images[0] != "/tmp/out/table.png" {
		t.Fatalf("images = %v", reply.Images)
	}
	if strings.Contains(reply.Text, "|") {
		t.Errorf("pipe table in text: %q", reply.Text)
	}
	if client.totalCalls() != 2 {
		t.Errorf("model calls = %d, want exactly 2", client.totalCalls())
	}
	if len(runner.calls) != 1 {
		t.Errorf("runner calls = %v", runner.calls)
	}

	// Tool results went back as a user message correlated by ID.
	synth := client.streamReqs[0]
	last := synth.Messages[len(synth.Messages)-1]
	if last.Role != "user" || last.Content[0].ToolUseID != "toolu_1" {
		t.Errorf("tool_result message = %+v", last)
	}
}

func TestExternalToolFailureStillCompletes(t *testing.T) {
	first := &llm.Response{Content: []llm.ContentBlock{
		{Type: "tool_use", ID: "toolu_9", Name: "sei_get_chain_info", Input: map[string]any{}},
	}}
	client := &fakeLLM{responses: []*llm.Response{first}, streamText: "The chain info tool failed: pipe broke."}
	bridge := &fakeBridge{
		catalog: []tools.Descriptor{{Name: "sei_get_chain_info", Origin: tools.OriginExternal}},
		result:  tools.Errorf("sei:get_chain_info: pipe broke"),
	}
	a, _ := newTestAssistant(client, bridge, nil)

	reply, err := a.Respond(context.Background(), "chat-1", "what's the chain status on-chain?")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Text == "" {
		t.Fatal("empty output after tool failure")
	}

	synth := client.streamReqs[0]
	last := synth.Messages[len(synth.Messages)-1]
	if !last.Content[0].IsError || !strings.Contains(last.Content[0].Content, "pipe broke") {
		t.Errorf("failure not preserved in tool_result: %+v", last.Content[0])
	}
}

func TestGenericToolRequestRunsStatusTool(t *testing.T) {
	client := &fakeLLM{}
	bridge := &fakeBridge{
		catalog: []tools.Descriptor{
			{Name: "sei_get_validators", Description: "Validator set"},
			{Name: "sei_get_chain_status", Description: "Current network status"},
		},
		result: tools.Text("network: pacific-1, height: 12345"),
	}
	a, store := newTestAssistant(client, bridge, nil)

	reply, err := a.Respond(context.Background(), "chat-1", "connect mcp")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if client.totalCalls() != 0 {
		t.Errorf("model calls = %d, want 0", client.totalCalls())
	}
	if len(bridge.invoked) != 1 || bridge.invoked[0] != "sei_get_chain_status" {
		t.Errorf("invoked = %v, want the status tool", bridge.invoked)
	}
	if !strings.Contains(reply.Text, "pacific-1") {
		t.Errorf("reply = %q", reply.Text)
	}

	sess, _ := store.Get(context.Background(), "chat-1")
	if len(sess.Turns) != 2 {
		t.Errorf("turns = %d, want committed pair", len(sess.Turns))
	}
}

func TestNoExternalToolsPlainCatalog(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{textResponse("hi")}}
	a, _ := newTestAssistant(client, nil, nil)

	if _, err := a.Respond(context.Background(), "chat-1", "latest SEI price today?"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	req := client.msgReqs[0]
	for _, tool := range req.Tools {
		if strings.Contains(tool.Name, ":") {
			t.Errorf("external tool offered with none configured: %+v", tool)
		}
	}
	// Recency vocabulary with no external tools keeps web search in.
	found := false
	for _, tool := range req.Tools {
		if tool.Type == "web_search_20250305" {
			found = true
		}
	}
	if !found {
		t.Error("web search missing from catalog")
	}
}

func TestWebSearchSuppressedByLiveData(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{textResponse("height is 12345")}}
	bridge := &fakeBridge{catalog: []tools.Descriptor{{Name: "sei_get_chain_info"}}}
	a, _ := newTestAssistant(client, bridge, nil)

	if _, err := a.Respond(context.Background(), "chat-1", "what's the latest block height?"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	for _, tool := range client.msgReqs[0].Tools {
		if tool.Type == "web_search_20250305" {
			t.Error("web search offered despite live-data query with external tools")
		}
	}
}

func TestHardFailureLeavesSessionUncommitted(t *testing.T) {
	client := &fakeLLM{msgErr: errors.New("bad request")}
	a, store := newTestAssistant(client, nil, nil)

	if _, err := a.Respond(context.Background(), "chat-1", "hello"); err == nil {
		t.Fatal("expected error")
	}
	sess, _ := store.Get(context.Background(), "chat-1")
	if len(sess.Turns) != 0 {
		t.Errorf("turns committed despite hard failure: %+v", sess.Turns)
	}
}

func TestStreamFailureFallsBackToBlocking(t *testing.T) {
	first := &llm.Response{Content: []llm.ContentBlock{
		{Type: "tool_use", ID: "toolu_1", Name: "make_table_image", Input: map[string]any{}},
	}}
	client := &fakeLLM{
		responses:  []*llm.Response{first, textResponse("blocking synthesis")},
		streamErr:  errors.New("stream reset"),
		streamText: "",
	}
	runner := &fakeRunner{handled: map[string]tools.Result{
		"make_table_image": tools.Image("/tmp/t.png"),
	}}
	a, _ := newTestAssistant(client, nil, runner)

	reply, err := a.Respond(context.Background(), "chat-1", "table please")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Text != "blocking synthesis" {
		t.Errorf("reply = %q", reply.Text)
	}
	if len(client.msgReqs) != 2 || len(client.streamReqs) != 1 {
		t.Errorf("calls = %d blocking / %d streamed", len(client.msgReqs), len(client.streamReqs))
	}
}

func TestCompaction(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{
		textResponse("answer 16"),
		textResponse("summary of the chat so far"),
	}}
	a, store := newTestAssistant(client, nil, nil)

	seed := &session.Session{}
	for i := 0; i < 8; i++ {
		seed.Turns = append(seed.Turns,
			session.UserTurn(fmt.Sprintf("question %d", i)),
			session.AssistantTurn(fmt.Sprintf("answer %d", i)))
	}
	store.Save(context.Background(), "chat-1", seed)

	if _, err := a.Respond(context.Background(), "chat-1", "question 16"); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	sess, _ := store.Get(context.Background(), "chat-1")
	if sess.Summary != "summary of the chat so far" {
		t.Errorf("summary = %q", sess.Summary)
	}
	if len(sess.Turns) != 6 {
		t.Errorf("turns after compaction = %d, want 6", len(sess.Turns))
	}
	// Most recent turns survive.
	last := sess.Turns[len(sess.Turns)-1]
	if last.Segments[0].Text != "answer 16" {
		t.Errorf("last turn = %+v", last)
	}
}

func TestCompactionFailureKeepsTurns(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{
		textResponse("answer"),
		textResponse(""), // empty summary must not truncate
	}}
	a, store := newTestAssistant(client, nil, nil)

	seed := &session.Session{}
	for i := 0; i < 8; i++ {
		seed.Turns = append(seed.Turns, session.UserTurn("q"), session.AssistantTurn("a"))
	}
	store.Save(context.Background(), "chat-1", seed)

	if _, err := a.Respond(context.Background(), "chat-1", "next"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	sess, _ := store.Get(context.Background(), "chat-1")
	if len(sess.Turns) != 18 {
		t.Errorf("turns = %d, want all 18 preserved", len(sess.Turns))
	}
	if sess.Summary != "" {
		t.Errorf("summary = %q, want unset", sess.Summary)
	}
}

func TestMentionedToolForcedIntoCatalog(t *testing.T) {
	client := &fakeLLM{responses: []*llm.Response{textResponse("ok")}}
	bridge := &fakeBridge{catalog: []tools.Descriptor{
		{Name: "sei_search_docs", Description: "Search SEI documentation"},
	}}
	a, _ := newTestAssistant(client, bridge, nil)

	// Docs tool is normally gated out, but naming it forces it in.
	if _, err := a.Respond(context.Background(), "chat-1", "run search_docs for me"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	found := false
	for _, tool := range client.msgReqs[0].Tools {
		if tool.Name == "sei_search_docs" {
			found = true
		}
	}
	if !found {
		t.Error("mentioned tool missing from catalog")
	}
}

func TestSystemTextPreview(t *testing.T) {
	var external []tools.Descriptor
	for i := 0; i < 20; i++ {
		external = append(external, tools.Descriptor{
			Name:        fmt.Sprintf("sei_tool_%d", i),
			Description: "does things",
		})
	}
	a, _ := newTestAssistant(&fakeLLM{}, &fakeBridge{catalog: external}, nil)

	text := a.systemText("earlier we discussed staking", external)
	if !strings.Contains(text, "[Conversation summary]") || !strings.Contains(text, "earlier we discussed staking") {
		t.Errorf("summary missing: %q", text)
	}
	if !strings.Contains(text, "sei_tool_15") {
		t.Error("preview cut off before the limit")
	}
	if strings.Contains(text, "sei_tool_16") {
		t.Error("preview exceeds the limit")
	}
}

func TestReset(t *testing.T) {
	a, store := newTestAssistant(&fakeLLM{}, nil, nil)
	store.Save(context.Background(), "chat-1", &session.Session{Turns: []session.Turn{session.UserTurn("q")}})

	if err := a.Reset(context.Background(), "chat-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	sess, _ := store.Get(context.Background(), "chat-1")
	if len(sess.Turns) != 0 {
		t.Errorf("session survived reset: %+v", sess.Turns)
	}
}
