package services

import (
	"errors"
	"strings"
	"testing"

	tabmodel "github.com/tsawler/tabula/model"
)

func makeTable(rows [][]string) *tabmodel.Table {
	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	t := tabmodel.NewTable(len(rows), cols)
	for i, row := range rows {
		for j, text := range row {
			t.Rows[i][j].Text = text
		}
	}
	return t
}

type fakeStrategy struct {
	name   string
	tables []*tabmodel.Table
	err    error
	calls  int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Detect(page *tabmodel.Page) ([]*tabmodel.Table, error) {
	f.calls++
	return f.tables, f.err
}

func TestNormalizeCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Revenue  ", "Revenue"},
		{"", "N/A"},
		{"nan", "N/A"},
		{"NaN", "N/A"},
		{"NULL", "N/A"},
		{"  1,024.5 ", "1,024.5"},
		{"Net\n income", "Net income"},
	}
	for _, tc := range tests {
		if got := normalizeCell(tc.in); got != tc.want {
			t.Errorf("normalizeCell(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeTableDropsEmptyRows(t *testing.T) {
	table := makeTable([][]string{
		{"Metric", "FY24"},
		{"", "nan"},
		{"Revenue", "100"},
	})

	rows := normalizeTable(table)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after normalization, got %d", len(rows))
	}
	if rows[1][0] != "Revenue" {
		t.Errorf("unexpected row content: %v", rows[1])
	}
}

func TestRenderAlignedColumns(t *testing.T) {
	rows := [][]string{
		{"Metric", "FY24", "FY23"},
		{"Revenue", "100", "90"},
	}

	out := renderAligned(rows)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	// Second column should start at the same offset on every line.
	first := strings.Index(lines[0], "FY24")
	second := strings.Index(lines[1], "100")
	if first != second {
		t.Errorf("columns misaligned: %d vs %d\n%s", first, second, out)
	}
}

func TestExtractPageFirstStrategyWins(t *testing.T) {
	flow := &fakeStrategy{name: "flow", tables: []*tabmodel.Table{
		makeTable([][]string{{"a", "b"}, {"1", "2"}}),
	}}
	grid := &fakeStrategy{name: "grid"}

	e := NewTableExtractor(flow, grid)
	page := tabmodel.NewPage(612, 792)

	rendered, err := e.extractPage(page)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rendered) != 1 {
		t.Fatalf("expected 1 rendered table, got %d", len(rendered))
	}
	if grid.calls != 0 {
		t.Error("grid strategy should not run when flow found tables")
	}
}

func TestExtractPageFallsBackToSecondStrategy(t *testing.T) {
	flow := &fakeStrategy{name: "flow", err: errors.New("no whitespace structure")}
	grid := &fakeStrategy{name: "grid", tables: []*tabmodel.Table{
		makeTable([][]string{{"h1", "h2"}, {"x", "y"}}),
	}}

	e := NewTableExtractor(flow, grid)
	page := tabmodel.NewPage(612, 792)

	rendered, err := e.extractPage(page)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rendered) != 1 {
		t.Fatalf("expected fallback table, got %d", len(rendered))
	}
	if flow.calls != 1 || grid.calls != 1 {
		t.Errorf("strategy calls flow=%d grid=%d, want 1 and 1", flow.calls, grid.calls)
	}
}

func TestExtractPageEmptyTablesTryNextStrategy(t *testing.T) {
	// A strategy that only finds fully-empty tables yields nothing, so
	// the chain moves on.
	flow := &fakeStrategy{name: "flow", tables: []*tabmodel.Table{
		makeTable([][]string{{"", "nan"}, {"NULL", ""}}),
	}}
	grid := &fakeStrategy{name: "grid", tables: []*tabmodel.Table{
		makeTable([][]string{{"real", "data"}, {"1", "2"}}),
	}}

	e := NewTableExtractor(flow, grid)
	rendered, err := e.extractPage(tabmodel.NewPage(612, 792))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rendered) != 1 || !strings.Contains(rendered[0], "real") {
		t.Fatalf("expected grid result, got %v", rendered)
	}
}

func TestExtractTablesSkipsPagesWithoutLayout(t *testing.T) {
	flow := &fakeStrategy{name: "flow", tables: []*tabmodel.Table{
		makeTable([][]string{{"a", "b"}, {"1", "2"}}),
	}}
	e := NewTableExtractor(flow)

	parsed := &ParseResult{
		Pages: []PageContent{
			{Number: 1, Text: "fallback text, no layout"},
			{Number: 2, Text: "layout page", Layout: tabmodel.NewPage(612, 792)},
		},
	}

	out := e.ExtractTables(parsed)
	if _, ok := out[1]; ok {
		t.Error("page without layout must not appear in result")
	}
	if len(out[2]) != 1 {
		t.Errorf("expected 1 table on page 2, got %d", len(out[2]))
	}
}
