package tools

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tranminh/seibot/internal/render"
)

// fakeRenderer records the options of the last call instead of drawing.
type fakeRenderer struct {
	tableOpts render.TableOptions
	tableErr  error
	qrText    string
	qrSize    int
}

func (f *fakeRenderer) Table(opts render.TableOptions) (string, error) {
	f.tableOpts = opts
	if f.tableErr != nil {
		return "", f.tableErr
	}
	return "/tmp/out/table.png", nil
}

func (f *fakeRenderer) QR(text string, size int) (string, error) {
	f.qrText, f.qrSize = text, size
	return "/tmp/out/qr.png", nil
}

func TestRunnerTable(t *testing.T) {
	fr := &fakeRenderer{}
	r := NewRunner(fr)

	args := json.RawMessage(`{
		"columns": ["Asset", "Price"],
		"rows": [["SEI", 0.45], ["ATOM", 9]],
		"title": "Prices",
		"theme": "dark",
		"cell_padding": [12, 8]
	}`)
	res, handled := r.Run("make_table_image", args)
	if !handled {
		t.Fatal("make_table_image not handled")
	}
	if !res.IsImage() || res.Path != "/tmp/out/table.png" {
		t.Fatalf("result = %+v", res)
	}

	got := fr.tableOpts
	if got.Title != "Prices" || got.Theme != "dark" {
		t.Errorf("title/theme = %q/%q", got.Title, got.Theme)
	}
	if got.CellPadding != [2]int{12, 8} {
		t.Errorf("padding = %v", got.CellPadding)
	}
	if len(got.Rows) != 2 || got.Rows[0][1] != "0.45" || got.Rows[1][1] != "9" {
		t.Errorf("rows = %v, want numbers stringified without noise", got.Rows)
	}
}

func TestRunnerTableFlatRows(t *testing.T) {
	fr := &fakeRenderer{}
	r := NewRunner(fr)

	res, handled := r.Run("make_table_image", json.RawMessage(`{"columns":["V"],"rows":["a","b"]}`))
	if !handled || !res.IsImage() {
		t.Fatalf("result = %+v handled=%v", res, handled)
	}
	if len(fr.tableOpts.Rows) != 2 || fr.tableOpts.Rows[0][0] != "a" {
		t.Errorf("rows = %v, want single-cell rows", fr.tableOpts.Rows)
	}
}

func TestRunnerBadArguments(t *testing.T) {
	r := NewRunner(&fakeRenderer{})

	res, handled := r.Run("make_table_image", json.RawMessage(`{not json`))
	if !handled {
		t.Fatal("make_table_image not handled")
	}
	if !res.IsError() || !strings.Contains(res.Text, "make_table_image") {
		t.Fatalf("result = %+v, want error naming the tool", res)
	}
}

func TestRunnerQR(t *testing.T) {
	fr := &fakeRenderer{}
	r := NewRunner(fr)

	res, handled := r.Run("make_qr_image", json.RawMessage(`{"text":"sei1abc","size":128}`))
	if !handled || !res.IsImage() {
		t.Fatalf("result = %+v handled=%v", res, handled)
	}
	if fr.qrText != "sei1abc" || fr.qrSize != 128 {
		t.Errorf("qr call = %q/%d", fr.qrText, fr.qrSize)
	}
}

func TestRunnerUnknownTool(t *testing.T) {
	r := NewRunner(&fakeRenderer{})
	if _, handled := r.Run("sei:get_chain_status", nil); handled {
		t.Fatal("external tool name must not be handled locally")
	}
}

func TestResultPayload(t *testing.T) {
	img := Image("/tmp/x.png")
	if img.Payload() != `{"path":"/tmp/x.png"}` {
		t.Errorf("image payload = %q", img.Payload())
	}
	if Text("hello").Payload() != "hello" {
		t.Errorf("text payload mangled")
	}
	if !Errorf("tool %s failed", "x").IsError() {
		t.Errorf("Errorf lost its kind")
	}
}
