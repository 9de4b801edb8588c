package tools

import (
	"encoding/json"
	"fmt"
)

// ResultKind discriminates the Result union.
type ResultKind int

const (
	// KindText carries a textual payload.
	KindText ResultKind = iota

	// KindImage carries a filesystem path to a rendered artifact.
	KindImage

	// KindError carries a human-readable description of which tool
	// failed and why. Errors are delivered to the model as results,
	// never raised past the invocation boundary.
	KindError
)

// Result is the single shape every tool execution normalizes into.
// Exactly one of Path or Text is populated, selected by Kind.
type Result struct {
	Kind ResultKind
	Path string
	Text string
}

// Image builds an image result from a rendered file path.
func Image(path string) Result {
	return Result{Kind: KindImage, Path: path}
}

// Text builds a text result.
func Text(s string) Result {
	return Result{Kind: KindText, Text: s}
}

// Errorf builds an error result with a formatted description.
func Errorf(format string, args ...any) Result {
	return Result{Kind: KindError, Text: fmt.Sprintf(format, args...)}
}

// IsImage reports whether the result carries a rendered artifact.
func (r Result) IsImage() bool {
	return r.Kind == KindImage
}

// IsError reports whether the result describes a failure.
func (r Result) IsError() bool {
	return r.Kind == KindError
}

// Payload returns the string fed back to the model as the tool_result
// content. Image results are encoded as a small JSON object carrying
// the path so the model can reference the artifact.
func (r Result) Payload() string {
	if r.Kind == KindImage {
		data, err := json.Marshal(map[string]string{"path": r.Path})
		if err != nil {
			return r.Path
		}
		return string(data)
	}
	return r.Text
}
