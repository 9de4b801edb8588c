package mcp

import (
	"context"
	"runtime"
	"testing"
	"time"
)

// TestStdioTransportEcho round-trips a request through `cat`, which
// echoes the request line back verbatim. The echoed line parses as a
// Response with the matching ID, exercising framing and ID correlation
// without a real MCP server.
func TestStdioTransportEcho(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires cat")
	}

	tr := NewStdioTransport(StdioConfig{Command: "cat"})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := tr.Send(ctx, NewRequest(42, "ping", nil))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.ID != 42 {
		t.Errorf("ID = %d, want 42", resp.ID)
	}
}

// TestStdioTransportStartFailure verifies a missing executable surfaces
// as an error rather than a hang.
func TestStdioTransportStartFailure(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{Command: "/nonexistent/mcp-server"})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := tr.Send(ctx, NewRequest(1, "ping", nil)); err == nil {
		t.Fatal("expected start error")
	}
}

func TestMergedEnvOverrides(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{
		Command: "cat",
		Env:     map[string]string{"SEI_RPC_URL": "https://rpc.example"},
	})

	env := tr.mergedEnv()
	found := false
	for _, kv := range env {
		if kv == "SEI_RPC_URL=https://rpc.example" {
			found = true
		}
	}
	if !found {
		t.Error("expected SEI_RPC_URL override in merged environment")
	}
}
