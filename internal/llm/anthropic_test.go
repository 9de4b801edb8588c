package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *AnthropicClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewAnthropicClient("test-key", slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = srv.URL
	return c
}

func TestMessages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("missing anthropic-version header")
		}
		fmt.Fprint(w, `{
			"id": "msg_1",
			"role": "assistant",
			"content": [
				{"type": "text", "text": "Checking the chain."},
				{"type": "tool_use", "id": "toolu_1", "name": "make_table_image",
				 "input": {"columns": ["a"], "rows": [["1"]]}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 10, "output_tokens": 20}
		}`)
	})

	resp, err := c.Messages(context.Background(), Request{
		Model:    "claude-3-5-haiku-20241022",
		Messages: []Message{UserText("show a table")},
	})
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}

	if resp.Text() != "Checking the chain." {
		t.Errorf("Text() = %q", resp.Text())
	}
	uses := resp.ToolUses()
	if len(uses) != 1 {
		t.Fatalf("ToolUses() = %d, want 1", len(uses))
	}
	if uses[0].Name != "make_table_image" || uses[0].ID != "toolu_1" {
		t.Errorf("tool use = %+v", uses[0])
	}
	if resp.StopReason != "tool_use" {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
}

func TestMessagesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		fmt.Fprint(w, `{"type":"error","error":{"type":"overloaded_error"}}`)
	})

	_, err := c.Messages(context.Background(), Request{Model: "m", Messages: []Message{UserText("hi")}})
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is %T, want *APIError", err)
	}
	if apiErr.Status != 529 {
		t.Errorf("Status = %d, want 529", apiErr.Status)
	}
	if !IsOverloaded(err) {
		t.Error("529 should be classified as overloaded")
	}
}

func TestStreamText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\n")
		fmt.Fprint(w, `data: {"type":"message_start","message":{"id":"msg_1"}}`+"\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Validator count is "}}`+"\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"97."}}`+"\n\n")
		fmt.Fprint(w, "event: message_stop\n")
		fmt.Fprint(w, `data: {"type":"message_stop"}`+"\n\n")
	})

	var deltas []string
	got, err := c.StreamText(context.Background(), Request{
		Model:    "m",
		Messages: []Message{UserText("how many validators?")},
	}, func(d string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("StreamText() error: %v", err)
	}

	if got != "Validator count is 97." {
		t.Errorf("accumulated text = %q", got)
	}
	if len(deltas) != 2 {
		t.Errorf("deltas = %d, want 2", len(deltas))
	}
}

func TestIsOverloaded(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &APIError{Status: 429}, true},
		{"overloaded", &APIError{Status: 529}, true},
		{"unavailable", &APIError{Status: 503}, true},
		{"bad request", &APIError{Status: 400}, false},
		{"auth", &APIError{Status: 401}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOverloaded(tt.err); got != tt.want {
				t.Errorf("IsOverloaded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryPolicyDo(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	t.Run("succeeds after overload", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), nil, func() error {
			calls++
			if calls < 3 {
				return &APIError{Status: 529}
			}
			return nil
		})
		if err != nil {
			t.Errorf("Do() error: %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), nil, func() error {
			calls++
			return &APIError{Status: 429}
		})
		if !IsOverloaded(err) {
			t.Errorf("expected overload error, got %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("non-overload fails immediately", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), nil, func() error {
			calls++
			return &APIError{Status: 400}
		})
		if err == nil {
			t.Error("expected error")
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}
