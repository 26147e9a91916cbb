package services

import (
	"fmt"
	"strings"

	"financial-qa-platform/internal/logger"

	tabmodel "github.com/tsawler/tabula/model"
	"github.com/tsawler/tabula/tables"
)

// missingCell is the canonical placeholder for empty table cells.
const missingCell = "N/A"

// TableStrategy detects tables on a single analyzed page. Strategies
// run in a fixed order; the first one that finds a table wins.
type TableStrategy interface {
	Name() string
	Detect(page *tabmodel.Page) ([]*tabmodel.Table, error)
}

type geometricStrategy struct {
	name     string
	detector *tables.GeometricDetector
}

func (s *geometricStrategy) Name() string { return s.name }

func (s *geometricStrategy) Detect(page *tabmodel.Page) ([]*tabmodel.Table, error) {
	return s.detector.Detect(page)
}

// NewFlowStrategy detects borderless tables from whitespace alignment,
// the common shape in financial filings.
func NewFlowStrategy() TableStrategy {
	d := tables.NewGeometricDetector()
	cfg := tables.DefaultConfig()
	cfg.UseLines = false
	cfg.UseWhitespace = true
	if err := d.Configure(cfg); err != nil {
		panic(fmt.Sprintf("flow strategy config: %v", err))
	}
	return &geometricStrategy{name: "flow", detector: d}
}

// NewGridStrategy detects ruled tables from drawn lines.
func NewGridStrategy() TableStrategy {
	d := tables.NewGeometricDetector()
	cfg := tables.DefaultConfig()
	cfg.UseLines = true
	cfg.UseWhitespace = false
	if err := d.Configure(cfg); err != nil {
		panic(fmt.Sprintf("grid strategy config: %v", err))
	}
	return &geometricStrategy{name: "grid", detector: d}
}

// TableExtractor walks a parsed document and renders every detected
// table as aligned plain text.
type TableExtractor struct {
	strategies []TableStrategy
}

func NewTableExtractor(strategies ...TableStrategy) *TableExtractor {
	if len(strategies) == 0 {
		strategies = []TableStrategy{NewFlowStrategy(), NewGridStrategy()}
	}
	return &TableExtractor{strategies: strategies}
}

// ExtractTables returns rendered table texts keyed by 1-based page
// number. Pages without tables, without layout data, or whose
// detection failed are absent from the map.
func (e *TableExtractor) ExtractTables(parsed *ParseResult) map[int][]string {
	out := make(map[int][]string)

	for _, page := range parsed.Pages {
		if page.Layout == nil {
			continue
		}

		rendered, err := e.extractPage(page.Layout)
		if err != nil {
			logger.Warn("Table detection failed for page", "page", page.Number, "error", err)
			continue
		}
		if len(rendered) > 0 {
			out[page.Number] = rendered
		}
	}

	return out
}

func (e *TableExtractor) extractPage(page *tabmodel.Page) ([]string, error) {
	var lastErr error

	for _, strategy := range e.strategies {
		detected, err := strategy.Detect(page)
		if err != nil {
			lastErr = err
			continue
		}

		rendered := renderTables(detected)
		if len(rendered) > 0 {
			logger.Debug("Tables detected", "strategy", strategy.Name(), "page", page.Number, "count", len(rendered))
			return rendered, nil
		}
	}

	return nil, lastErr
}

func renderTables(detected []*tabmodel.Table) []string {
	var rendered []string
	for _, t := range detected {
		rows := normalizeTable(t)
		if len(rows) == 0 {
			continue
		}
		rendered = append(rendered, renderAligned(rows))
	}
	return rendered
}

// normalizeTable trims cells, canonicalizes empty and not-a-number
// markers, and drops rows that carry no data at all.
func normalizeTable(t *tabmodel.Table) [][]string {
	var rows [][]string

	for _, row := range t.Rows {
		cells := make([]string, len(row))
		empty := true
		for j, cell := range row {
			cells[j] = normalizeCell(cell.Text)
			if cells[j] != missingCell {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, cells)
		}
	}

	return rows
}

func normalizeCell(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	switch text {
	case "", "nan", "NaN", "NULL":
		return missingCell
	}
	return text
}

// renderAligned lays rows out as fixed-width columns so numeric
// columns stay readable after embedding.
func renderAligned(rows [][]string) string {
	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}

	widths := make([]int, cols)
	for _, row := range rows {
		for j, cell := range row {
			if len(cell) > widths[j] {
				widths[j] = len(cell)
			}
		}
	}

	var sb strings.Builder
	for i, row := range rows {
		if i > 0 {
			sb.WriteString("\n")
		}
		for j, cell := range row {
			if j > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(cell)
			if j < len(row)-1 {
				sb.WriteString(strings.Repeat(" ", widths[j]-len(cell)))
			}
		}
	}
	return sb.String()
}
