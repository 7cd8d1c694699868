package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/eddielth/mesh-trans/logger"
	"github.com/eddielth/mesh-trans/transformer"
)

// FileStorage appends records as JSON lines, one file per measurement
type FileStorage struct {
	basePath string
	mu       sync.Mutex
}

// NewFileStorage creates basePath if needed
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create dir %s failed: %w", basePath, err)
	}

	logger.Info("init file storage: %s", basePath)
	return &FileStorage{
		basePath: basePath,
	}, nil
}

// Store appends each record to <basePath>/<measurement>.jsonl
func (fs *FileStorage) Store(_ context.Context, records []transformer.Record) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("serialize record failed: %w", err)
		}

		filename := filepath.Join(fs.basePath, safeName(record.Measurement)+".jsonl")
		if err := appendLine(filename, line); err != nil {
			return err
		}
		logger.Debug("has stored record to file: %s", filename)
	}
	return nil
}

func appendLine(filename string, line []byte) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open file %s failed: %w", filename, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write file %s failed: %w", filename, err)
	}
	return nil
}

// safeName keeps node labels from escaping the storage directory
func safeName(measurement string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, strings.TrimLeft(measurement, "."))
}

// Close implement StorageBackend
func (fs *FileStorage) Close() error {
	return nil
}
