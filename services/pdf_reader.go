package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"financial-qa-platform/internal/logger"

	"github.com/ledongthuc/pdf"
	"github.com/tsawler/tabula"
	tabmodel "github.com/tsawler/tabula/model"
)

// PageContent is one parsed page: its plain text plus the analyzed
// layout model when the primary parser produced one. Layout is nil on
// the fallback path, which means table detection is unavailable.
type PageContent struct {
	Number int // 1-based
	Text   string
	Layout *tabmodel.Page
}

// ParseResult is the output of reading one PDF.
type ParseResult struct {
	Pages          []PageContent
	PageCount      int
	ParserUsed     string
	ProcessingTime time.Duration
}

// PDFReader extracts per-page text and layout from PDF files. The
// layout-aware parser runs first; a plain-text parser takes over when
// the file defeats it.
type PDFReader struct{}

func NewPDFReader() *PDFReader {
	return &PDFReader{}
}

func (r *PDFReader) Read(ctx context.Context, filePath string) (*ParseResult, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat PDF file: %w", err)
	}
	if stat.Size() > 200<<20 { // 200MB safety cap
		return nil, fmt.Errorf("pdf too large for in-memory extraction")
	}

	result, err := r.readWithTabula(filePath)
	if err != nil {
		logger.Warn("Layout parser failed, falling back to plain text", "file", filePath, "error", err)
		result, err = r.readWithGoPDF(filePath)
		if err != nil {
			return nil, fmt.Errorf("all parsers failed for %s: %w", filePath, err)
		}
	}

	result.ProcessingTime = time.Since(start)
	return result, nil
}

func (r *PDFReader) readWithTabula(filePath string) (res *ParseResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("layout analysis panicked: %v", rec)
		}
	}()

	doc, err := tabula.AnalyzeDocument(filePath)
	if err != nil {
		return nil, fmt.Errorf("layout analysis failed: %w", err)
	}
	if doc.PageCount() == 0 {
		return nil, fmt.Errorf("no pages found")
	}

	pages := make([]PageContent, 0, doc.PageCount())
	for _, page := range doc.Pages {
		pages = append(pages, PageContent{
			Number: page.Number,
			Text:   page.ExtractText(),
			Layout: page,
		})
	}

	return &ParseResult{
		Pages:      pages,
		PageCount:  doc.PageCount(),
		ParserUsed: "tabula",
	}, nil
}

func (r *PDFReader) readWithGoPDF(filePath string) (*ParseResult, error) {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	pageCount := reader.NumPage()
	if pageCount == 0 {
		return nil, fmt.Errorf("no pages found")
	}

	pages := make([]PageContent, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			// One broken page must not sink the document.
			logger.Warn("Failed to extract text from page", "page", i, "error", err)
			continue
		}

		pages = append(pages, PageContent{
			Number: i,
			Text:   text,
		})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no extractable pages")
	}

	return &ParseResult{
		Pages:      pages,
		PageCount:  pageCount,
		ParserUsed: "go-pdf",
	}, nil
}

// HasText reports whether a page carries anything beyond whitespace.
func (p PageContent) HasText() bool {
	return strings.TrimSpace(p.Text) != ""
}
