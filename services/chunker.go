package services

import (
	"sort"
	"strings"

	"financial-qa-platform/models"
)

// Chunker splits page text into bounded overlapping spans. Separators
// are tried coarsest first so chunks break on paragraphs before
// sentences and sentences before words.
type Chunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 50
	}
	return &Chunker{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: []string{"\n\n", "\n", ".", " "},
	}
}

// SplitText returns chunks of at most chunkSize characters with
// roughly overlap characters shared between neighbors. Whitespace-only
// chunks are dropped.
func (c *Chunker) SplitText(text string) []string {
	splits := c.split(text, c.separators)

	out := make([]string, 0, len(splits))
	for _, s := range splits {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Chunker) split(text string, seps []string) []string {
	if len(text) <= c.chunkSize {
		return []string{text}
	}

	sep := ""
	var rest []string
	for i, s := range seps {
		if strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}
	if sep == "" {
		return c.hardSplit(text)
	}

	// Keep the separator attached so rejoining loses nothing.
	pieces := strings.SplitAfter(text, sep)

	var result []string
	var good []string
	for _, p := range pieces {
		if len(p) <= c.chunkSize {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			result = append(result, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			result = append(result, c.hardSplit(p)...)
		} else {
			result = append(result, c.split(p, rest)...)
		}
	}
	if len(good) > 0 {
		result = append(result, c.merge(good)...)
	}
	return result
}

// merge packs small splits into chunks, carrying a tail of previous
// splits forward as the overlap.
func (c *Chunker) merge(splits []string) []string {
	var chunks []string
	var window []string
	total := 0

	for _, s := range splits {
		if total+len(s) > c.chunkSize && len(window) > 0 {
			chunks = append(chunks, strings.Join(window, ""))
			for len(window) > 0 && (total > c.overlap || total+len(s) > c.chunkSize) {
				total -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, s)
		total += len(s)
	}

	if len(window) > 0 {
		chunks = append(chunks, strings.Join(window, ""))
	}
	return chunks
}

func (c *Chunker) hardSplit(text string) []string {
	step := c.chunkSize - c.overlap
	if step < 1 {
		step = 1
	}

	var out []string
	for i := 0; i < len(text); i += step {
		end := i + c.chunkSize
		if end >= len(text) {
			out = append(out, text[i:])
			break
		}
		out = append(out, text[i:end])
	}
	return out
}

// BuildDocuments assembles the retrievable units for one ingested PDF:
// per page, ascending, text chunks followed by that page's tables.
// Doc IDs are deterministic so re-ingesting a document overwrites its
// previous vectors instead of duplicating them.
func (c *Chunker) BuildDocuments(docName string, threadID int64, pages []PageContent, tables map[int][]string) []models.ChunkDocument {
	byNumber := make(map[int]PageContent, len(pages))
	numbers := make([]int, 0, len(pages))
	for _, p := range pages {
		byNumber[p.Number] = p
		numbers = append(numbers, p.Number)
	}
	for n := range tables {
		if _, ok := byNumber[n]; !ok {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)

	var docs []models.ChunkDocument
	for _, n := range numbers {
		if page, ok := byNumber[n]; ok && page.HasText() {
			for j, chunk := range c.SplitText(page.Text) {
				docs = append(docs, models.ChunkDocument{
					DocID:      models.TextChunkID(docName, n, j),
					Content:    chunk,
					PageNumber: n,
					DocName:    docName,
					ThreadID:   threadID,
				})
			}
		}

		for k, tableText := range tables[n] {
			docs = append(docs, models.ChunkDocument{
				DocID:      models.TableChunkID(docName, n, k),
				Content:    models.TableMarker + "\n" + tableText,
				PageNumber: n,
				DocName:    docName,
				ThreadID:   threadID,
				IsTable:    true,
			})
		}
	}

	return docs
}
