package normalize

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	fencePat     = regexp.MustCompile("```(?:[^\n]*\n)?([\\s\\S]*?)```")
	tableLinePat = regexp.MustCompile(`^\s*[\|\+].*[\|\+]\s*$`)
	sepLinePat   = regexp.MustCompile(`^\s*[-=\+\|\s:]+\s*$`)
)

// extractTableBlock finds the first textual table in text: a fenced
// block containing pipe/plus characters, or a run of three or more
// consecutive pipe/plus-delimited lines.
func extractTableBlock(text string) string {
	if m := fencePat.FindStringSubmatch(text); m != nil {
		body := m[1]
		if strings.Contains(body, "|") || strings.Contains(body, "+-") {
			return strings.TrimSpace(body)
		}
	}

	var buf []string
	for _, line := range strings.Split(text, "\n") {
		if tableLinePat.MatchString(line) {
			buf = append(buf, line)
			continue
		}
		if len(buf) >= 3 {
			return strings.TrimSpace(strings.Join(buf, "\n"))
		}
		buf = buf[:0]
	}
	if len(buf) >= 3 {
		return strings.TrimSpace(strings.Join(buf, "\n"))
	}
	return ""
}

// parseTable splits a pipe-delimited table block (Markdown or ASCII)
// into a header row and data rows. Separator lines are discarded and
// ragged data rows are padded/truncated to the header width. Returns
// false when the block has no usable header (fewer than two columns).
func parseTable(raw string) (columns []string, rows [][]string, ok bool) {
	var parsed [][]string
	for _, line := range strings.Split(raw, "\n") {
		if sepLinePat.MatchString(strings.TrimSpace(line)) {
			continue
		}
		if !strings.Contains(line, "|") {
			continue
		}
		trimmed := strings.Trim(strings.TrimSpace(line), "|")
		cells := strings.Split(trimmed, "|")
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = strings.TrimSpace(c)
		}
		parsed = append(parsed, row)
	}
	if len(parsed) == 0 || len(parsed[0]) < 2 {
		return nil, nil, false
	}

	columns = parsed[0]
	ncol := len(columns)
	for _, r := range parsed[1:] {
		row := make([]string, ncol)
		for i := 0; i < ncol && i < len(r); i++ {
			row[i] = r[i]
		}
		rows = append(rows, row)
	}
	return columns, rows, true
}

// chartConfig is the subset of a chart-service URL config we can turn
// back into a table.
type chartConfig struct {
	Data struct {
		Labels   []any `json:"labels"`
		Datasets []struct {
			Label string `json:"label"`
			Data  []any  `json:"data"`
		} `json:"datasets"`
	} `json:"data"`
}

// decodeChartURL extracts tabular data from a chart-rendering URL's
// embedded `c=` config parameter.
func decodeChartURL(raw string) (columns []string, rows [][]string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, nil, false
	}
	cfgParam := u.Query().Get("c")
	if cfgParam == "" {
		return nil, nil, false
	}

	var cfg chartConfig
	if err := json.Unmarshal([]byte(cfgParam), &cfg); err != nil {
		return nil, nil, false
	}
	if len(cfg.Data.Labels) == 0 || len(cfg.Data.Datasets) == 0 {
		return nil, nil, false
	}

	ds := cfg.Data.Datasets[0]
	valueLabel := ds.Label
	if valueLabel == "" {
		valueLabel = "Value"
	}
	columns = []string{"Label", valueLabel}
	for i, label := range cfg.Data.Labels {
		value := ""
		if i < len(ds.Data) {
			value = scalarString(ds.Data[i])
		}
		rows = append(rows, []string{scalarString(label), value})
	}
	return columns, rows, true
}

// scalarString renders a decoded JSON scalar for a table cell.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		return fmt.Sprintf("%t", t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
