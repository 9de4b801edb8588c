package bridge

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"

	"github.com/tranminh/seibot/internal/mcp"
	"github.com/tranminh/seibot/internal/tools"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// normalizeResult converts a raw MCP tool reply into the tagged Result
// the rest of the system consumes. Precedence:
//
//  1. structured content carrying an image path or base64 image
//  2. image content blocks (base64 written to a temp file)
//  3. text content, pretty-printed when it parses as JSON
//  4. stringified structured content as a last resort
func normalizeResult(raw *mcp.CallToolResult) tools.Result {
	if raw == nil {
		return tools.Text("")
	}

	text := joinTextBlocks(raw.Content)

	if raw.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return tools.Errorf("%s", text)
	}

	if len(raw.StructuredContent) > 0 {
		var payload map[string]any
		if err := json.Unmarshal(raw.StructuredContent, &payload); err == nil {
			if res, ok := normalizePayload(payload); ok {
				return res
			}
		}
	}

	for _, block := range raw.Content {
		if block.Type != "image" || block.Data == "" {
			continue
		}
		path, err := writeBase64Image(block.Data)
		if err != nil {
			return tools.Errorf("invalid image payload: %v", err)
		}
		return tools.Image(path)
	}

	if text != "" {
		if pretty, ok := maybePrettyJSON(text); ok {
			return tools.Text(pretty)
		}
		return tools.Text(text)
	}

	if len(raw.StructuredContent) > 0 {
		return tools.Text(string(raw.StructuredContent))
	}
	return tools.Text("")
}

// normalizePayload inspects a structured payload for the image and text
// conventions tool servers commonly use.
func normalizePayload(payload map[string]any) (tools.Result, bool) {
	for _, key := range []string{"path", "image_path"} {
		if p, ok := payload[key].(string); ok && hasImageExtension(p) {
			return tools.Image(p), true
		}
	}
	for _, key := range []string{"png_base64", "image_base64"} {
		b64, ok := payload[key].(string)
		if !ok {
			continue
		}
		path, err := writeBase64Image(b64)
		if err != nil {
			return tools.Errorf("invalid base64 image: %v", err), true
		}
		return tools.Image(path), true
	}
	if s, ok := payload["text"].(string); ok {
		if pretty, ok := maybePrettyJSON(s); ok {
			return tools.Text(pretty), true
		}
		return tools.Text(s), true
	}
	return tools.Result{}, false
}

func hasImageExtension(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// writeBase64Image decodes a base64 payload into a temp PNG file and
// returns its path.
func writeBase64Image(b64 string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "mcp_img_*.png")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// joinTextBlocks concatenates the text content blocks.
func joinTextBlocks(blocks []mcp.ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// maybePrettyJSON re-indents s when it parses as JSON.
func maybePrettyJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return "", false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return "", false
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", false
	}
	return string(out), true
}
