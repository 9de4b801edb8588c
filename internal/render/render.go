// Package render produces the PNG artifacts seibot sends to chat:
// tabular data drawn as an image, and QR codes for SEI addresses.
//
// The table renderer is deliberately minimal — a fixed bitmap font and
// simple grid drawing. It clamps malformed inputs rather than erroring:
// ragged rows are padded or truncated and missing column labels are
// synthesized, since the inputs usually come from model output.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TableOptions describes one table rendering request.
type TableOptions struct {
	Columns []string
	Rows    [][]string
	Title   string

	// Theme is "light" (default) or "dark".
	Theme string

	// CellPadding is [x, y] pixels inside each cell. Zero values fall
	// back to 16x10.
	CellPadding [2]int

	// Filename is an optional output name. Relative names land in the
	// renderer's output directory. Empty generates table_<uuid>.png.
	Filename string
}

// theme holds the color palette for one rendering.
type theme struct {
	bg     color.RGBA
	fg     color.RGBA
	grid   color.RGBA
	headBG color.RGBA
}

var (
	lightTheme = theme{
		bg:     color.RGBA{255, 255, 255, 255},
		fg:     color.RGBA{23, 23, 23, 255},
		grid:   color.RGBA{210, 210, 210, 255},
		headBG: color.RGBA{245, 247, 250, 255},
	}
	darkTheme = theme{
		bg:     color.RGBA{16, 18, 20, 255},
		fg:     color.RGBA{240, 240, 240, 255},
		grid:   color.RGBA{70, 70, 80, 255},
		headBG: color.RGBA{32, 35, 40, 255},
	}
)

// Renderer writes PNG files into a single output directory.
type Renderer struct {
	outDir string
	logger *slog.Logger
	face   font.Face
}

// New creates a renderer writing into outDir (created on demand).
func New(outDir string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	if outDir == "" {
		outDir = "out_images"
	}
	return &Renderer{
		outDir: outDir,
		logger: logger.With("component", "render"),
		face:   basicfont.Face7x13,
	}
}

// Table renders tabular data to a PNG file and returns its absolute path.
func (r *Renderer) Table(opts TableOptions) (string, error) {
	cols, rows := clamp(opts.Columns, opts.Rows)

	padX, padY := opts.CellPadding[0], opts.CellPadding[1]
	if padX <= 0 {
		padX = 16
	}
	if padY <= 0 {
		padY = 10
	}

	th := lightTheme
	if opts.Theme == "dark" {
		th = darkTheme
	}

	metrics := r.face.Metrics()
	lineH := (metrics.Ascent + metrics.Descent).Ceil()
	rowH := lineH + 2*padY
	headH := rowH
	titleH := 0
	if opts.Title != "" {
		titleH = lineH + 2*padY
	}

	// Column widths: widest of header and cells, plus padding.
	colWidths := make([]int, len(cols))
	for i, col := range cols {
		w := r.textWidth(col)
		for _, row := range rows {
			if cw := r.textWidth(row[i]); cw > w {
				w = cw
			}
		}
		colWidths[i] = w + 2*padX
	}

	tableW := 0
	for _, w := range colWidths {
		tableW += w + 1
	}
	tableW++ // trailing grid line
	tableH := headH + len(rows)*rowH + len(rows) + 2

	const margin = 20
	imgW := tableW + 2*margin
	imgH := titleH + tableH + 2*margin

	img := image.NewRGBA(image.Rect(0, 0, imgW, imgH))
	draw.Draw(img, img.Bounds(), &image.Uniform{th.bg}, image.Point{}, draw.Src)

	x0 := margin
	y := margin

	if opts.Title != "" {
		r.drawText(img, x0, y+lineH, opts.Title, th.fg)
		y += titleH
	}

	tableTop := y

	// Header band.
	draw.Draw(img, image.Rect(x0, y, x0+tableW, y+headH), &image.Uniform{th.headBG}, image.Point{}, draw.Src)
	cx := x0 + 1
	for i, col := range cols {
		tw := r.textWidth(col)
		tx := cx + (colWidths[i]-tw)/2
		r.drawText(img, tx, y+padY+metrics.Ascent.Ceil(), col, th.fg)
		cx += colWidths[i] + 1
	}
	hline(img, x0, x0+tableW, y+headH, th.grid)
	y += headH + 1

	// Data rows.
	for _, row := range rows {
		cx = x0 + 1
		for i, val := range row {
			r.drawText(img, cx+padX, y+padY+metrics.Ascent.Ceil(), val, th.fg)
			vline(img, cx+colWidths[i], y-1, y+rowH, th.grid)
			cx += colWidths[i] + 1
		}
		hline(img, x0, x0+tableW, y+rowH, th.grid)
		y += rowH + 1
	}

	// Outer frame.
	rect(img, x0, tableTop, x0+tableW, tableTop+headH+len(rows)*rowH+len(rows)+1, th.grid)

	path, err := r.outputPath(opts.Filename, "table")
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return "", fmt.Errorf("encode PNG: %w", err)
	}

	r.logger.Debug("rendered table image",
		"path", path,
		"columns", len(cols),
		"rows", len(rows),
	)
	return path, nil
}

// textWidth measures a string in the renderer's face.
func (r *Renderer) textWidth(s string) int {
	return font.MeasureString(r.face, s).Ceil()
}

// drawText draws s with its baseline at (x, y).
func (r *Renderer) drawText(img *image.RGBA, x, y int, s string, c color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{c},
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// outputPath resolves the destination file. Relative filenames land in
// the output directory; empty filenames get a generated name.
func (r *Renderer) outputPath(filename, prefix string) (string, error) {
	if filename == "" {
		filename = fmt.Sprintf("%s_%s.png", prefix, uuid.NewString())
	}

	var path string
	if filepath.IsAbs(filename) {
		path = filename
	} else {
		path = filepath.Join(r.outDir, filename)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return abs, nil
}

// clamp normalizes columns and rows: synthesized column labels when
// absent, ragged rows padded or truncated to the column count.
func clamp(columns []string, rows [][]string) ([]string, [][]string) {
	ncol := len(columns)
	if ncol == 0 {
		for _, row := range rows {
			if len(row) > ncol {
				ncol = len(row)
			}
		}
		if ncol == 0 {
			ncol = 1
		}
		columns = make([]string, ncol)
		for i := range columns {
			columns[i] = fmt.Sprintf("C%d", i+1)
		}
	}

	normRows := make([][]string, len(rows))
	for j, row := range rows {
		norm := make([]string, ncol)
		for i := 0; i < ncol && i < len(row); i++ {
			norm[i] = row[i]
		}
		normRows[j] = norm
	}
	return columns, normRows
}

func hline(img *image.RGBA, x0, x1, y int, c color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y, c)
	}
}

func vline(img *image.RGBA, x, y0, y1 int, c color.RGBA) {
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x, y, c)
	}
}

func rect(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	hline(img, x0, x1, y0, c)
	hline(img, x0, x1, y1, c)
	vline(img, x0, y0, y1, c)
	vline(img, x1, y0, y1, c)
}
