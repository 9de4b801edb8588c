package tools

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tranminh/seibot/internal/render"
)

// WebSearch is the model API's hosted search tool. The API executes it
// server-side during generation, so it has no input schema and no local
// runner. Capped at one search per request to bound latency.
func WebSearch() Descriptor {
	return Descriptor{
		Name:    "web_search",
		Origin:  OriginLocalServer,
		Type:    "web_search_20250305",
		MaxUses: 1,
	}
}

// MakeTableImage renders tabular data to a PNG for the chat surface.
func MakeTableImage() Descriptor {
	return Descriptor{
		Name:        "make_table_image",
		Description: "Render tabular data to a PNG image for Telegram (or web).",
		Origin:      OriginLocalClient,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"columns": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
				"rows": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": []string{"string", "number", "boolean", "null"}},
					},
				},
				"title": map[string]any{"type": "string"},
				"theme": map[string]any{
					"type": "string", "enum": []string{"light", "dark"}, "default": "light",
				},
				"font_size": map[string]any{
					"type": "integer", "minimum": 8, "maximum": 48, "default": 18,
				},
				"cell_padding": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "integer"},
					"minItems":    2,
					"maxItems":    2,
					"default":     []int{16, 10},
					"description": "[pad_x, pad_y] pixels",
				},
				"filename": map[string]any{
					"type":        "string",
					"description": "Optional output filename (relative -> output directory).",
				},
			},
			"required": []string{"columns", "rows"},
		},
	}
}

// MakeQRImage renders text (a SEI address, a URL) as a QR code PNG.
func MakeQRImage() Descriptor {
	return Descriptor{
		Name:        "make_qr_image",
		Description: "Render text (e.g. a SEI address or URL) as a QR code PNG image.",
		Origin:      OriginLocalClient,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
				"size": map[string]any{
					"type": "integer", "minimum": 64, "maximum": 1024, "default": 256,
				},
			},
			"required": []string{"text"},
		},
	}
}

// Renderer is the drawing surface client tools run against.
type Renderer interface {
	Table(render.TableOptions) (string, error)
	QR(text string, size int) (string, error)
}

// Runner executes local client tools in-process.
type Runner struct {
	renderer Renderer
}

// NewRunner builds a runner over a renderer.
func NewRunner(r Renderer) *Runner {
	return &Runner{renderer: r}
}

// Run executes a local client tool by name. The second return reports
// whether the name was recognized; unrecognized names are not errors,
// they belong to some other executor. Tool failures come back as error
// results, never as Go errors.
func (r *Runner) Run(name string, args json.RawMessage) (Result, bool) {
	switch name {
	case "make_table_image":
		return r.runTable(args), true
	case "make_qr_image":
		return r.runQR(args), true
	}
	return Result{}, false
}

func (r *Runner) runTable(args json.RawMessage) Result {
	var in map[string]any
	if err := json.Unmarshal(args, &in); err != nil {
		return Errorf("make_table_image: bad arguments: %v", err)
	}

	opts := render.TableOptions{
		Columns: stringSlice(in["columns"]),
		Rows:    rowSlice(in["rows"]),
	}
	if s, ok := in["title"].(string); ok {
		opts.Title = s
	}
	if s, ok := in["theme"].(string); ok {
		opts.Theme = s
	}
	if s, ok := in["filename"].(string); ok {
		opts.Filename = s
	}
	if pad := stringSlice(in["cell_padding"]); len(pad) == 2 {
		x, errX := strconv.Atoi(pad[0])
		y, errY := strconv.Atoi(pad[1])
		if errX == nil && errY == nil {
			opts.CellPadding = [2]int{x, y}
		}
	}

	path, err := r.renderer.Table(opts)
	if err != nil {
		return Errorf("make_table_image: %v", err)
	}
	return Image(path)
}

func (r *Runner) runQR(args json.RawMessage) Result {
	var in struct {
		Text string `json:"text"`
		Size int    `json:"size"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Errorf("make_qr_image: bad arguments: %v", err)
	}

	path, err := r.renderer.QR(in.Text, in.Size)
	if err != nil {
		return Errorf("make_qr_image: %v", err)
	}
	return Image(path)
}

// stringSlice coerces a decoded JSON value into a string slice,
// stringifying scalars. Non-arrays yield nil.
func stringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, len(list))
	for i, item := range list {
		out[i] = stringify(item)
	}
	return out
}

// rowSlice coerces a decoded JSON value into rows of cells. A flat
// array of scalars becomes single-cell rows, matching how models
// sometimes emit one-column tables.
func rowSlice(v any) [][]string {
	list, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil
		}
		return [][]string{{stringify(v)}}
	}
	out := make([][]string, 0, len(list))
	for _, item := range list {
		if cells, ok := item.([]any); ok {
			row := make([]string, len(cells))
			for i, c := range cells {
				row[i] = stringify(c)
			}
			out = append(out, row)
			continue
		}
		out = append(out, []string{stringify(item)})
	}
	return out
}

// stringify renders a decoded JSON scalar the way a human would write
// it: integral floats without the trailing ".0", null as empty.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
