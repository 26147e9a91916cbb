package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"financial-qa-platform/internal/logger"
)

// ImageExtractor rasterizes PDF pages to JPEG via poppler's pdftoppm.
// Rasterization is auxiliary: any failure, including a missing binary,
// yields missing entries instead of an error.
type ImageExtractor struct {
	dpi int
}

func NewImageExtractor() *ImageExtractor {
	return &ImageExtractor{dpi: 100}
}

// ExtractImages renders each page and returns base64 JPEG keyed by
// 1-based page number.
func (e *ImageExtractor) ExtractImages(ctx context.Context, filePath string, pageCount int) map[string]string {
	images := make(map[string]string)

	if !hasBinary("pdftoppm") {
		logger.Warn("pdftoppm not available, skipping page rasterization")
		return images
	}

	tmpDir, err := os.MkdirTemp("", "pageimg-*")
	if err != nil {
		logger.Warn("Failed to create temp dir for page images", "error", err)
		return images
	}
	defer os.RemoveAll(tmpDir)

	for page := 1; page <= pageCount; page++ {
		data, err := e.renderPage(ctx, filePath, tmpDir, page)
		if err != nil {
			logger.Warn("Failed to rasterize page", "page", page, "error", err)
			continue
		}
		images[strconv.Itoa(page)] = base64.StdEncoding.EncodeToString(data)
	}

	return images
}

func (e *ImageExtractor) renderPage(ctx context.Context, filePath, tmpDir string, page int) ([]byte, error) {
	renderCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	prefix := filepath.Join(tmpDir, fmt.Sprintf("page-%d", page))

	cmd := exec.CommandContext(renderCtx, "pdftoppm",
		"-jpeg",
		"-r", strconv.Itoa(e.dpi),
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-singlefile",
		filePath, prefix,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %v, stderr: %s", err, stderr.String())
	}

	return os.ReadFile(prefix + ".jpg")
}

// hasBinary checks if a binary executable exists in PATH
func hasBinary(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
