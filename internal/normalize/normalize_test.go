package normalize

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"github.com/tranminh/seibot/internal/render"
	"github.com/tranminh/seibot/internal/tools"
)

// fakeLocal records table requests and returns a fixed path.
type fakeLocal struct {
	calls []render.TableOptions
	err   error
}

func (f *fakeLocal) Table(opts render.TableOptions) (string, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/out/rendered.png", nil
}

// fakeExt pretends the bridge registered an image-table tool.
type fakeExt struct {
	tool    string
	invoked string
	result  tools.Result
}

func (f *fakeExt) FindImageTableTool() string { return f.tool }

func (f *fakeExt) Invoke(_ context.Context, name string, _ map[string]any) tools.Result {
	f.invoked = name
	return f.result
}

func newTestPipeline(local LocalRenderer, ext ExternalTools) *Pipeline {
	return New(local, ext, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStripLeakedToolCalls(t *testing.T) {
	p := newTestPipeline(&fakeLocal{}, nil)

	in := "Here is the status:\nsei:get_chain_info({\"network\":\"pacific-1\"})\nAll good."
	text, images := p.Run(context.Background(), in, nil)
	if strings.Contains(text, "get_chain_info") {
		t.Errorf("leaked call survived: %q", text)
	}
	if !strings.Contains(text, "All good.") {
		t.Errorf("surrounding text lost: %q", text)
	}
	if len(images) != 0 {
		t.Errorf("unexpected images: %v", images)
	}
}

func TestPipeTableBecomesImage(t *testing.T) {
	local := &fakeLocal{}
	p := newTestPipeline(local, nil)

	in := strings.Join([]string{
		"Top tokens:",
		"| Token | Price |",
		"|-------|-------|",
		"| SEI   | $0.45 |",
		"| ATOM  | $9.10 |",
		"| OSMO  | $0.80 |",
		"Data as of today.",
	}, "\n")

	text, images := p.Run(context.Background(), in, nil)
	if len(images) != 1 {
		t.Fatalf("images = %v, want one rendered table", images)
	}
	if strings.Contains(text, "| SEI") || strings.Contains(text, "| Token") {
		t.Errorf("table text survived: %q", text)
	}
	if !strings.Contains(text, "Data as of today.") {
		t.Errorf("prose lost: %q", text)
	}
	if len(local.calls) != 1 || local.calls[0].Columns[0] != "Token" {
		t.Fatalf("render calls = %+v", local.calls)
	}
	if local.calls[0].Rows[0][1] != "$0.45" {
		t.Errorf("rows = %v", local.calls[0].Rows)
	}
}

func TestFencedTableBecomesImage(t *testing.T) {
	local := &fakeLocal{}
	p := newTestPipeline(local, nil)

	in := "```\n| A | B |\n| 1 | 2 |\n```"
	text, images := p.Run(context.Background(), in, nil)
	if len(images) != 1 {
		t.Fatalf("images = %v", images)
	}
	if strings.Contains(text, "```") || strings.Contains(text, "| A |") {
		t.Errorf("fence or table survived: %q", text)
	}
}

func TestExternalTableToolPreferred(t *testing.T) {
	local := &fakeLocal{}
	ext := &fakeExt{tool: "sei_render_table_png", result: tools.Image("/tmp/ext.png")}
	p := newTestPipeline(local, ext)

	in := "| X | Y |\n| 1 | 2 |\n| 3 | 4 |"
	_, images := p.Run(context.Background(), in, nil)
	if len(images) != 1 || images[0] != "/tmp/ext.png" {
		t.Fatalf("images = %v, want external render", images)
	}
	if ext.invoked != "sei_render_table_png" {
		t.Errorf("invoked = %q", ext.invoked)
	}
	if len(local.calls) != 0 {
		t.Errorf("local renderer used despite external tool")
	}
}

func TestExternalFailureFallsBackToLocal(t *testing.T) {
	local := &fakeLocal{}
	ext := &fakeExt{tool: "sei_render_table_png", result: tools.Errorf("boom")}
	p := newTestPipeline(local, ext)

	_, images := p.Run(context.Background(), "| X | Y |\n| 1 | 2 |\n| 3 | 4 |", nil)
	if len(images) != 1 || images[0] != "/tmp/out/rendered.png" {
		t.Fatalf("images = %v, want local fallback", images)
	}
}

func TestImageGatesTableFallback(t *testing.T) {
	local := &fakeLocal{}
	p := newTestPipeline(local, nil)

	in := "| A | B |\n| 1 | 2 |\n| 3 | 4 |"
	text, images := p.Run(context.Background(), in, []string{"/tmp/already.png"})
	if len(images) != 1 {
		t.Fatalf("images = %v, want only the pre-existing one", images)
	}
	if len(local.calls) != 0 {
		t.Error("renderer invoked despite existing image")
	}
	if !strings.Contains(text, "| A | B |") {
		t.Errorf("text table removed despite gate: %q", text)
	}
}

func TestPrintedTableCallIsExecuted(t *testing.T) {
	local := &fakeLocal{}
	p := newTestPipeline(local, nil)

	in := `Here you go: make_table_image(columns=["Token","Price"], rows=[["SEI","0.45"]], title="Prices") done.`
	text, images := p.Run(context.Background(), in, nil)
	if len(images) != 1 {
		t.Fatalf("images = %v", images)
	}
	if strings.Contains(text, "make_table_image") {
		t.Errorf("printed call survived: %q", text)
	}
	if len(local.calls) != 1 {
		t.Fatalf("render calls = %d", len(local.calls))
	}
	got := local.calls[0]
	if got.Title != "Prices" || got.Columns[1] != "Price" || got.Rows[0][0] != "SEI" {
		t.Errorf("options = %+v", got)
	}
}

func TestChartURLDecoded(t *testing.T) {
	local := &fakeLocal{}
	p := newTestPipeline(local, nil)

	cfg := url.QueryEscape(`{"type":"bar","data":{"labels":["Mon","Tue"],"datasets":[{"label":"Volume","data":[10,20.5]}]}}`)
	in := "Trend: ![chart](https://quickchart.io/chart?c=" + cfg + ") as shown."

	text, images := p.Run(context.Background(), in, nil)
	if len(images) != 1 {
		t.Fatalf("images = %v", images)
	}
	if strings.Contains(text, "quickchart") {
		t.Errorf("dead link survived: %q", text)
	}
	if len(local.calls) != 1 {
		t.Fatalf("render calls = %d", len(local.calls))
	}
	got := local.calls[0]
	if got.Columns[1] != "Volume" || got.Rows[1][0] != "Tue" || got.Rows[1][1] != "20.5" {
		t.Errorf("decoded table = %+v", got)
	}
}

func TestMultipleChartURLsAllStripped(t *testing.T) {
	local := &fakeLocal{}
	p := newTestPipeline(local, nil)

	cfg := url.QueryEscape(`{"data":{"labels":["Mon"],"datasets":[{"label":"Volume","data":[10]}]}}`)
	in := "First ![chart](https://quickchart.io/chart?c=" + cfg + ") and " +
		"second ![chart](https://example.com/chart.png) link."

	text, images := p.Run(context.Background(), in, nil)
	if len(images) != 1 {
		t.Fatalf("images = %v", images)
	}
	if strings.Contains(text, "quickchart") || strings.Contains(text, "example.com") {
		t.Errorf("dead link survived: %q", text)
	}
	if len(local.calls) != 1 {
		t.Errorf("render calls = %d, want only the decodable chart rendered", len(local.calls))
	}
}

func TestChartURLWithoutConfigStillStripped(t *testing.T) {
	p := newTestPipeline(&fakeLocal{}, nil)

	in := "See ![chart](https://example.com/chart.png) here."
	text, images := p.Run(context.Background(), in, nil)
	if len(images) != 0 {
		t.Errorf("images = %v", images)
	}
	if strings.Contains(text, "example.com") {
		t.Errorf("dead link survived: %q", text)
	}
}

func TestPlottingFenceWithCurrentValue(t *testing.T) {
	local := &fakeLocal{}
	p := newTestPipeline(local, nil)

	in := "Chart code:\n```python\nimport matplotlib.pyplot as plt\ncurrent_value = 42.7\nplt.plot(xs)\n```\nDone."
	text, images := p.Run(context.Background(), in, nil)
	if len(images) != 1 {
		t.Fatalf("images = %v", images)
	}
	if strings.Contains(text, "plt.plot") {
		t.Errorf("code fence survived: %q", text)
	}
	if len(local.calls) != 1 || local.calls[0].Rows[0][1] != "42.7" {
		t.Errorf("render calls = %+v", local.calls)
	}
}

func TestPlottingFenceWithoutValueIsStripped(t *testing.T) {
	p := newTestPipeline(&fakeLocal{}, nil)

	in := "```python\nimport pandas as pd\ndf = pd.DataFrame(data)\n```\nSummary follows."
	text, images := p.Run(context.Background(), in, nil)
	if len(images) != 0 {
		t.Errorf("images = %v", images)
	}
	if strings.Contains(text, "DataFrame") {
		t.Errorf("code fence survived: %q", text)
	}
	if !strings.Contains(text, "Summary follows.") {
		t.Errorf("prose lost: %q", text)
	}
}

func TestPercentNearRate(t *testing.T) {
	local := &fakeLocal{}
	p := newTestPipeline(local, nil)

	text, images := p.Run(context.Background(), "Staking currently offers an APR of 11.5% on SEI.", nil)
	if len(images) != 1 {
		t.Fatalf("images = %v", images)
	}
	if !strings.Contains(text, "11.5%") {
		t.Errorf("prose lost: %q", text)
	}
	if len(local.calls) != 1 || local.calls[0].Rows[0][0] != "APR" || local.calls[0].Rows[0][1] != "11.5%" {
		t.Errorf("render calls = %+v", local.calls)
	}
}

func TestIdempotent(t *testing.T) {
	p := newTestPipeline(&fakeLocal{}, nil)

	in := "Top tokens:\n| Token | Price |\n| SEI | $0.45 |\n| ATOM | $9.10 |\nEnd."
	once, imgs := p.Run(context.Background(), in, nil)
	twice, imgs2 := p.Run(context.Background(), once, imgs)
	if once != twice {
		t.Errorf("second run changed text:\n once=%q\ntwice=%q", once, twice)
	}
	if len(imgs2) != len(imgs) {
		t.Errorf("second run changed images: %v vs %v", imgs2, imgs)
	}
}

func TestPlainTextUntouched(t *testing.T) {
	p := newTestPipeline(&fakeLocal{}, nil)

	in := "SEI's current block height is 12,345,678."
	text, images := p.Run(context.Background(), in, nil)
	if text != in || len(images) != 0 {
		t.Errorf("plain text altered: %q %v", text, images)
	}
}
