package llm

import "context"

// Client is the interface the orchestration loop uses for model calls.
type Client interface {
	// Messages sends a blocking request and returns the full response.
	Messages(ctx context.Context, req Request) (*Response, error)

	// StreamText sends a streaming request. Text deltas are passed to
	// onDelta as they arrive (onDelta may be nil) and the accumulated
	// text is returned once the stream completes.
	StreamText(ctx context.Context, req Request, onDelta func(string)) (string, error)
}
