package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nialthony/Campuss-Blink-Pass/internal/logger"
)

// New selects and initializes a backend. A configured database path picks
// sqlite; when its initialization fails and fallbackToMemory is set, the
// service degrades to the in-memory engine instead of refusing to start.
func New(databasePath string, fallbackToMemory bool) (EventStore, error) {
	if databasePath == "" {
		return newMemory()
	}

	s := NewSQLiteStore(databasePath)
	if err := s.Init(); err != nil {
		if !fallbackToMemory {
			return nil, fmt.Errorf("sqlite backend init: %w", err)
		}
		logger.Warn("sqlite init failed, falling back to memory store", zap.Error(err))
		return newMemory()
	}

	logger.Info("store ready", zap.String("mode", s.Mode()))
	return s, nil
}

func newMemory() (EventStore, error) {
	s := NewMemoryStore()
	if err := s.Init(); err != nil {
		return nil, fmt.Errorf("memory backend init: %w", err)
	}
	logger.Info("store ready", zap.String("mode", s.Mode()))
	return s, nil
}
