// Package normalize cleans the synthesized model text before it is
// returned to the caller: leaked tool-call syntax is stripped, dead
// chart links and printed tables are replaced by locally rendered
// images, and plotting code fences are reduced or removed.
//
// The pipeline is a fixed ordered list of (predicate, transform)
// passes. Image-producing passes are gated on "no image produced yet
// for this turn" so images from real tool runs take precedence over
// text-table fallbacks. Every pass is a no-op on text that does not
// match its trigger, and the whole pipeline is idempotent.
package normalize

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tranminh/seibot/internal/render"
	"github.com/tranminh/seibot/internal/tools"
)

// LocalRenderer is the in-process table renderer of last resort.
type LocalRenderer interface {
	Table(opts render.TableOptions) (string, error)
}

// ExternalTools is the slice of the tool bridge the pipeline uses to
// prefer a richer external table renderer when one is registered.
type ExternalTools interface {
	FindImageTableTool() string
	Invoke(ctx context.Context, name string, args map[string]any) tools.Result
}

// state is the text/images accumulator threaded through the passes.
type state struct {
	text   string
	images []string
}

type pass struct {
	name string

	// gated passes run only while no image exists for the turn.
	gated bool

	apply func(ctx context.Context, p *Pipeline, s *state)
}

// Pipeline applies the cleanup passes in order.
type Pipeline struct {
	local  LocalRenderer
	ext    ExternalTools
	logger *slog.Logger
	passes []pass
}

// New builds the pipeline. ext may be nil when no bridge is available.
func New(local LocalRenderer, ext ExternalTools, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		local:  local,
		ext:    ext,
		logger: logger.With("component", "normalize"),
		passes: []pass{
			{name: "strip-leaked-tool-calls", apply: passStripLeakedToolCalls},
			{name: "chart-url-markup", gated: true, apply: passChartURL},
			{name: "printed-table-call", gated: true, apply: passPrintedTableCall},
			{name: "plotting-code-fence", gated: true, apply: passPlottingFence},
			{name: "percent-near-rate", gated: true, apply: passPercentNearRate},
			{name: "text-table-to-image", gated: true, apply: passTextTable},
		},
	}
}

// Run normalizes text. images carries any artifacts already produced by
// tool execution this turn; the returned slice includes them plus any
// images the passes render.
func (p *Pipeline) Run(ctx context.Context, text string, images []string) (string, []string) {
	s := &state{text: text, images: append([]string(nil), images...)}
	for _, ps := range p.passes {
		if ps.gated && len(s.images) > 0 {
			continue
		}
		before := s.text
		ps.apply(ctx, p, s)
		if s.text != before {
			p.logger.Debug("normalization pass rewrote text", "pass", ps.name)
		}
	}
	s.text = strings.TrimSpace(s.text)
	return s.text, s.images
}

// renderTable renders parsed tabular data, preferring an external
// image-table tool when the bridge advertises one.
func (p *Pipeline) renderTable(ctx context.Context, columns []string, rows [][]string, title string) (string, bool) {
	if p.ext != nil {
		if name := p.ext.FindImageTableTool(); name != "" {
			res := p.ext.Invoke(ctx, name, map[string]any{
				"columns": columns,
				"rows":    rows,
			})
			if res.IsImage() {
				return res.Path, true
			}
			p.logger.Warn("external table tool did not produce an image", "tool", name)
		}
	}
	if p.local == nil {
		return "", false
	}
	path, err := p.local.Table(render.TableOptions{Columns: columns, Rows: rows, Title: title})
	if err != nil {
		p.logger.Warn("local table render failed", "error", err)
		return "", false
	}
	return path, true
}
