package services

import (
	"fmt"
	"strings"
	"testing"

	"financial-qa-platform/models"
)

func TestSplitTextShortInput(t *testing.T) {
	c := NewChunker(900, 50)

	chunks := c.SplitText("Revenue grew 12% year over year.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestSplitTextRespectsChunkSize(t *testing.T) {
	c := NewChunker(900, 50)

	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString(fmt.Sprintf("Paragraph %d discusses quarterly operating margins in detail.\n\n", i))
	}

	chunks := c.SplitText(sb.String())
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 900 {
			t.Errorf("chunk %d exceeds size limit: %d chars", i, len(chunk))
		}
	}
}

func TestSplitTextOverlapCarriesContext(t *testing.T) {
	c := NewChunker(100, 30)

	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString(fmt.Sprintf("sentence %d here. ", i))
	}

	chunks := c.SplitText(sb.String())
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}

	// Each chunk should share a suffix/prefix region with its successor.
	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i]
		if len(tail) > 30 {
			tail = tail[len(tail)-30:]
		}
		overlapFound := false
		for w := len(tail); w >= 5; w-- {
			if strings.HasPrefix(chunks[i+1], tail[len(tail)-w:]) {
				overlapFound = true
				break
			}
		}
		if !overlapFound {
			t.Errorf("chunks %d and %d share no overlap", i, i+1)
		}
	}
}

func TestSplitTextDropsWhitespaceOnlyChunks(t *testing.T) {
	c := NewChunker(10, 2)

	chunks := c.SplitText("word\n\n\n\n   \n\nanother")
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			t.Errorf("chunk %d is whitespace-only: %q", i, chunk)
		}
	}
}

func TestSplitTextNoSeparators(t *testing.T) {
	c := NewChunker(100, 10)

	text := strings.Repeat("x", 350)
	chunks := c.SplitText(text)

	for i, chunk := range chunks {
		if len(chunk) > 100 {
			t.Errorf("chunk %d exceeds limit: %d", i, len(chunk))
		}
	}

	// Stitching chunks back together must cover the whole input.
	joined := chunks[0]
	for i := 1; i < len(chunks); i++ {
		joined += chunks[i][min(10, len(chunks[i])):]
	}
	if len(joined) < len(text) {
		t.Errorf("reassembled text shorter than input: %d < %d", len(joined), len(text))
	}
}

func TestBuildDocumentsIDsAndOrdering(t *testing.T) {
	c := NewChunker(900, 50)

	pages := []PageContent{
		{Number: 1, Text: "First page narrative about revenue."},
		{Number: 2, Text: "Second page narrative about costs."},
		{Number: 3, Text: "Third page narrative about outlook."},
	}
	tables := map[int][]string{
		2: {"Metric  FY24  FY23\nRevenue  100  90"},
	}

	docs := c.BuildDocuments("annual_report", 7, pages, tables)

	wantIDs := []string{
		"annual_report_page_1_chunk_0",
		"annual_report_page_2_chunk_0",
		"annual_report_page_2_table_0",
		"annual_report_page_3_chunk_0",
	}
	if len(docs) != len(wantIDs) {
		t.Fatalf("expected %d documents, got %d", len(wantIDs), len(docs))
	}
	for i, want := range wantIDs {
		if docs[i].DocID != want {
			t.Errorf("doc %d: got id %q, want %q", i, docs[i].DocID, want)
		}
	}

	table := docs[2]
	if !table.IsTable {
		t.Error("table chunk not flagged as table")
	}
	if !strings.HasPrefix(table.Content, models.TableMarker+"\n") {
		t.Errorf("table content missing marker prefix: %q", table.Content)
	}
	if table.PageNumber != 2 {
		t.Errorf("table page = %d, want 2", table.PageNumber)
	}
	for _, d := range docs {
		if d.ThreadID != 7 {
			t.Errorf("doc %s thread = %d, want 7", d.DocID, d.ThreadID)
		}
	}
}

func TestBuildDocumentsUniqueIDs(t *testing.T) {
	c := NewChunker(120, 20)

	long := strings.Repeat("The quarter closed strong. ", 40)
	pages := []PageContent{
		{Number: 1, Text: long},
		{Number: 2, Text: long},
	}
	tables := map[int][]string{
		1: {"a  b", "c  d"},
	}

	docs := c.BuildDocuments("doc", 0, pages, tables)

	seen := make(map[string]bool)
	for _, d := range docs {
		if seen[d.DocID] {
			t.Fatalf("duplicate doc id %q", d.DocID)
		}
		seen[d.DocID] = true
	}

	if !seen["doc_page_1_table_0"] || !seen["doc_page_1_table_1"] {
		t.Error("expected one table doc per detected table")
	}
}

func TestBuildDocumentsSkipsEmptyPages(t *testing.T) {
	c := NewChunker(900, 50)

	pages := []PageContent{
		{Number: 1, Text: "   \n\n  "},
		{Number: 2, Text: "Actual content."},
	}

	docs := c.BuildDocuments("doc", 0, pages, nil)
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(docs))
	}
	if docs[0].DocID != "doc_page_2_chunk_0" {
		t.Errorf("unexpected id %q", docs[0].DocID)
	}
}
