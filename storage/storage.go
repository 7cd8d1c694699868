package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eddielth/mesh-trans/config"
	"github.com/eddielth/mesh-trans/logger"
	"github.com/eddielth/mesh-trans/transformer"
)

// StorageBackend persists classified records
type StorageBackend interface {
	Store(ctx context.Context, records []transformer.Record) error
	Close() error
}

// Manager fans records out to every backend
type Manager struct {
	backends []StorageBackend
	mutex    sync.RWMutex
}

// NewManager creates a storage manager over the given backends
func NewManager(backends []StorageBackend) *Manager {
	return &Manager{
		backends: backends,
	}
}

// NewManagerFromConfig opens every backend enabled in cfg
func NewManagerFromConfig(cfg config.StorageConfig) (*Manager, error) {
	var backends []StorageBackend

	if cfg.File.Enabled {
		fs, err := NewFileStorage(cfg.File.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file storage: %w", err)
		}
		backends = append(backends, fs)
	}

	if cfg.Database.Enabled {
		db, err := NewDatabaseStorage(cfg.Database.Type, cfg.Database.DSN)
		if err != nil {
			for _, b := range backends {
				b.Close()
			}
			return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Database.Type, err)
		}
		backends = append(backends, db)
	}

	if len(backends) == 0 {
		logger.Warn("no storage backend enabled, classified records will only be logged")
	}
	return NewManager(backends), nil
}

// Store writes records to all backends. A failing backend does not stop
// the others; all failures are returned joined.
func (m *Manager) Store(ctx context.Context, records []transformer.Record) error {
	if len(records) == 0 {
		return nil
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var errs []error
	for _, backend := range m.backends {
		if err := backend.Store(ctx, records); err != nil {
			logger.Error("failed to store records to backend: %v", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Len returns the number of backends
func (m *Manager) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.backends)
}

// Close closes all backends
func (m *Manager) Close() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, backend := range m.backends {
		if err := backend.Close(); err != nil {
			logger.Error("failed to close storage backend: %v", err)
		}
	}
}

// AddBackend adds a new storage backend
func (m *Manager) AddBackend(backend StorageBackend) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.backends = append(m.backends, backend)
}
