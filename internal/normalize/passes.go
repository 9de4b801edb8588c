package normalize

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tranminh/seibot/internal/render"
)

func renderOptions(cols []string, rows [][]string, title string) render.TableOptions {
	return render.TableOptions{Columns: cols, Rows: rows, Title: title}
}

// leakedToolCallPat matches a line that is nothing but a namespaced
// tool identifier, optionally followed by a parenthesized argument
// list — the model printing a call instead of making one.
var leakedToolCallPat = regexp.MustCompile(`^\s*[\w-]+:[\w.:-]+\s*(\(.*\))?\s*$`)

func passStripLeakedToolCalls(_ context.Context, _ *Pipeline, s *state) {
	lines := strings.Split(s.text, "\n")
	kept := lines[:0]
	changed := false
	for _, line := range lines {
		if leakedToolCallPat.MatchString(line) {
			changed = true
			continue
		}
		kept = append(kept, line)
	}
	if changed {
		s.text = strings.Join(kept, "\n")
	}
}

// chartImagePat matches Markdown image markup pointing at a chart
// rendering service.
var chartImagePat = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^)\s]*chart[^)\s]*)\)`)

func passChartURL(ctx context.Context, p *Pipeline, s *state) {
	matches := chartImagePat.FindAllStringSubmatch(s.text, -1)
	rendered := false
	for _, m := range matches {
		if !rendered {
			if columns, rows, ok := decodeChartURL(m[1]); ok {
				if path, ok := p.renderTable(ctx, columns, rows, ""); ok {
					s.images = append(s.images, path)
					rendered = true
				}
			}
		}
		// The link is dead for the user either way.
		s.text = strings.Replace(s.text, m[0], "", 1)
	}
}

var printedCallPat = regexp.MustCompile(`make_table_image\s*\(`)

func passPrintedTableCall(_ context.Context, p *Pipeline, s *state) {
	loc := printedCallPat.FindStringIndex(s.text)
	if loc == nil || p.local == nil {
		return
	}
	call, ok := balancedCall(s.text[loc[0]:])
	if !ok {
		return
	}

	columns := extractJSONArray(call, "columns")
	rows := extractJSONArray(call, "rows")
	if columns == nil || rows == nil {
		return
	}
	var cols []string
	var data [][]any
	if json.Unmarshal(columns, &cols) != nil || json.Unmarshal(rows, &data) != nil {
		return
	}
	strRows := make([][]string, len(data))
	for i, r := range data {
		strRows[i] = make([]string, len(r))
		for j, c := range r {
			strRows[i][j] = scalarString(c)
		}
	}

	path, err := p.local.Table(renderOptions(cols, strRows, extractQuoted(call, "title")))
	if err != nil {
		p.logger.Warn("rendering printed table call failed", "error", err)
		return
	}
	s.images = append(s.images, path)
	s.text = strings.Replace(s.text, call, "", 1)
}

// plottingHints flag a code fence that builds a chart instead of an
// answer.
var plottingHints = []string{"matplotlib", "plt.", "pyplot", "pandas", "pd.", "dataframe", "plotly", "seaborn"}

var currentValuePat = regexp.MustCompile(`(?i)current[_\s]*value\D{0,10}?([0-9][0-9,.]*)`)

func passPlottingFence(ctx context.Context, p *Pipeline, s *state) {
	loc := fencePat.FindStringSubmatchIndex(s.text)
	if loc == nil {
		return
	}
	whole := s.text[loc[0]:loc[1]]
	body := strings.ToLower(s.text[loc[2]:loc[3]])

	isPlotting := false
	for _, hint := range plottingHints {
		if strings.Contains(body, hint) {
			isPlotting = true
			break
		}
	}
	if !isPlotting {
		return
	}

	if m := currentValuePat.FindStringSubmatch(whole); m != nil {
		if path, ok := p.renderTable(ctx, []string{"Metric", "Value"}, [][]string{{"Current value", m[1]}}, ""); ok {
			s.images = append(s.images, path)
		}
	}
	// Never show plotting code to the user.
	s.text = strings.Replace(s.text, whole, "", 1)
}

// ratePercentPat finds a percentage immediately around an annualized
// rate keyword.
var ratePercentPat = regexp.MustCompile(`(?i)\b(APR|APY|annual(?:ized)?\s+(?:rate|yield|return))\b[^%\n]{0,40}?([0-9]+(?:\.[0-9]+)?)\s*%`)

func passPercentNearRate(ctx context.Context, p *Pipeline, s *state) {
	m := ratePercentPat.FindStringSubmatch(s.text)
	if m == nil {
		return
	}
	keyword := strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
	if path, ok := p.renderTable(ctx, []string{"Metric", "Value"}, [][]string{{keyword, m[2] + "%"}}, ""); ok {
		s.images = append(s.images, path)
	}
}

func passTextTable(ctx context.Context, p *Pipeline, s *state) {
	block := extractTableBlock(s.text)
	if block == "" {
		return
	}
	columns, rows, ok := parseTable(block)
	if !ok {
		return
	}
	path, rendered := p.renderTable(ctx, columns, rows, "")
	if !rendered {
		return
	}
	s.images = append(s.images, path)
	s.text = strings.ReplaceAll(strings.Replace(s.text, block, "", 1), "```", "")
}

// balancedCall returns the full call expression starting at the
// beginning of text (which must start with the tool name), up to the
// matching close paren.
func balancedCall(text string) (string, bool) {
	open := strings.IndexByte(text, '(')
	if open < 0 {
		return "", false
	}
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return text[:i+1], true
			}
		}
	}
	return "", false
}

// extractJSONArray pulls the bracketed array assigned to key out of a
// printed call, tolerating Python-style single quotes.
func extractJSONArray(call, key string) json.RawMessage {
	idx := regexp.MustCompile(`"?` + key + `"?\s*[=:]\s*\[`).FindStringIndex(call)
	if idx == nil {
		return nil
	}
	start := idx[1] - 1
	depth := 0
	for i := start; i < len(call); i++ {
		switch call[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				raw := call[start : i+1]
				if !json.Valid([]byte(raw)) {
					raw = strings.ReplaceAll(raw, "'", `"`)
				}
				if !json.Valid([]byte(raw)) {
					return nil
				}
				return json.RawMessage(raw)
			}
		}
	}
	return nil
}

// extractQuoted pulls a quoted string assigned to key, or "".
func extractQuoted(call, key string) string {
	m := regexp.MustCompile(`"?` + key + `"?\s*[=:]\s*["']([^"']*)["']`).FindStringSubmatch(call)
	if m == nil {
		return ""
	}
	return m[1]
}
