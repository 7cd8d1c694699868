package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// rotatingFile is an io.WriteCloser that renames the file to
// name.<timestamp>.ext once it grows past maxSize and keeps maxBackups copies
type rotatingFile struct {
	mu          sync.Mutex
	file        *os.File
	filePath    string
	maxSize     int64 // bytes, 0 disables rotation
	maxBackups  int
	currentSize int64
}

func newRotatingFile(filePath string, maxSize int64, maxBackups int) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rf := &rotatingFile{
		filePath:   filePath,
		maxSize:    maxSize,
		maxBackups: maxBackups,
	}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *rotatingFile) open() error {
	file, err := os.OpenFile(rf.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to get log file info: %w", err)
	}

	rf.file = file
	rf.currentSize = info.Size()
	return nil
}

func (rf *rotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, os.ErrClosed
	}

	n, err := rf.file.Write(p)
	rf.currentSize += int64(n)
	if err != nil {
		return n, err
	}

	if rf.maxSize > 0 && rf.currentSize >= rf.maxSize {
		if err := rf.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to rotate log file: %v\n", err)
		}
	}
	return n, nil
}

func (rf *rotatingFile) rotate() error {
	rf.file.Close()
	rf.file = nil

	timestamp := time.Now().Format("20060102-150405.000000")
	dir := filepath.Dir(rf.filePath)
	base := filepath.Base(rf.filePath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	backupPath := filepath.Join(dir, fmt.Sprintf("%s.%s%s", name, timestamp, ext))

	if err := os.Rename(rf.filePath, backupPath); err != nil {
		// keep appending to the current file
		if openErr := rf.open(); openErr != nil {
			return openErr
		}
		return err
	}

	rf.cleanOldLogs()
	return rf.open()
}

// cleanOldLogs deletes the oldest backups beyond maxBackups
func (rf *rotatingFile) cleanOldLogs() {
	dir := filepath.Dir(rf.filePath)
	base := filepath.Base(rf.filePath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	pattern := filepath.Join(dir, name+".*"+ext)

	matches, err := filepath.Glob(pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to find old log files: %v\n", err)
		return
	}
	if len(matches) <= rf.maxBackups {
		return
	}

	type fileInfo struct {
		path string
		time time.Time
	}
	files := make([]fileInfo, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		files = append(files, fileInfo{match, info.ModTime()})
	}

	// oldest first; backup names sort by time when mtimes tie
	sort.Slice(files, func(i, j int) bool {
		if files[i].time.Equal(files[j].time) {
			return files[i].path < files[j].path
		}
		return files[i].time.Before(files[j].time)
	})

	for i := 0; i < len(files)-rf.maxBackups; i++ {
		os.Remove(files[i].path)
	}
}

func (rf *rotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}
