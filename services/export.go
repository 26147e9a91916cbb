package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"financial-qa-platform/models"
)

// ExportService turns a thread's extracted tables into an XLSX
// workbook, one sheet per source document.
type ExportService struct {
	store *MongoDocStore
}

func NewExportService(store *MongoDocStore) *ExportService {
	return &ExportService{store: store}
}

// ExportThreadTables builds the workbook bytes for one thread. Errors
// when the thread holds no table chunks.
func (e *ExportService) ExportThreadTables(ctx context.Context, threadID int64) (*bytes.Buffer, error) {
	chunks, err := e.store.TableChunksByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no tables found for thread %d", threadID)
	}

	f := excelize.NewFile()
	defer f.Close()

	byDoc := make(map[string][]models.ChunkDocument)
	var docOrder []string
	for _, c := range chunks {
		if _, seen := byDoc[c.DocName]; !seen {
			docOrder = append(docOrder, c.DocName)
		}
		byDoc[c.DocName] = append(byDoc[c.DocName], c)
	}

	for i, docName := range docOrder {
		sheetName := sanitizeSheetName(docName)
		if i == 0 {
			f.SetSheetName("Sheet1", sheetName)
		} else if _, err := f.NewSheet(sheetName); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", sheetName, err)
		}

		row := 1
		for _, chunk := range byDoc[docName] {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			f.SetCellValue(sheetName, cell, fmt.Sprintf("Page %d (%s)", chunk.PageNumber, chunk.DocID))
			row++

			for _, line := range tableLines(chunk.Content) {
				for col, value := range splitColumns(line) {
					cell, _ := excelize.CoordinatesToCellName(col+1, row)
					f.SetCellValue(sheetName, cell, value)
				}
				row++
			}
			row++ // blank row between tables
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf, nil
}

// tableLines strips the table marker and returns the rendered rows.
func tableLines(content string) []string {
	content = strings.TrimPrefix(content, models.TableMarker)
	content = strings.TrimLeft(content, "\n")
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// splitColumns breaks an aligned table row back into cells on runs of
// two or more spaces.
func splitColumns(line string) []string {
	var cells []string
	for _, field := range strings.Split(line, "  ") {
		field = strings.TrimSpace(field)
		if field != "" {
			cells = append(cells, field)
		}
	}
	return cells
}

func sanitizeSheetName(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", "?", "", "*", "", "[", "(", "]", ")", ":", "-")
	name = replacer.Replace(name)
	if len(name) > 31 {
		name = name[:31]
	}
	if name == "" {
		name = "Tables"
	}
	return name
}
