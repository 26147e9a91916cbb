package services

import (
	"os"
	"path/filepath"
	"time"

	"financial-qa-platform/internal/logger"
)

// CleanupService sweeps staged upload files that never made it through
// ingestion, so failed or abandoned uploads don't pile up on disk.
type CleanupService struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	stopChan chan struct{}
}

func NewCleanupService(stagingDir string) *CleanupService {
	return &CleanupService{
		dir:      stagingDir,
		maxAge:   24 * time.Hour,
		interval: time.Hour,
		stopChan: make(chan struct{}),
	}
}

func (c *CleanupService) Start() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	logger.Info("Starting upload cleanup sweeper", "dir", c.dir, "max_age", c.maxAge.String())

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopChan:
			logger.Info("Stopping upload cleanup sweeper")
			return
		}
	}
}

func (c *CleanupService) Stop() {
	close(c.stopChan)
}

func (c *CleanupService) sweep() {
	cutoff := time.Now().Add(-c.maxAge)
	removed := 0

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Cleanup sweep failed to read staging dir", "dir", c.dir, "error", err)
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn("Failed to remove stale upload", "file", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("Removed stale staged uploads", "count", removed)
	}
}
