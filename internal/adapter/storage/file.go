package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/ports"
)

// FileStore is a KeyValue persisted to a single JSON file. The whole key
// space is read synchronously on open and rewritten on every mutation, so
// state is available before the first decision and no confirmed write is
// lost on a crash. Used when no redis is reachable (offline venues).
type FileStore struct {
	path string
	data map[string]json.RawMessage
	mu   sync.Mutex
	log  *zap.Logger
}

func NewFileStore(path string, log *zap.Logger) (ports.KeyValue, error) {
	s := &FileStore{
		path: path,
		data: make(map[string]json.RawMessage),
		log:  log,
	}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Fresh install; an empty key space is a valid "no active event" state.
	case err != nil:
		return nil, fmt.Errorf("failed to read state file: %w", err)
	default:
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("state file %s is corrupt: %w", path, err)
		}
	}

	log.Info("Opened file state store",
		zap.String("path", path),
		zap.Int("keys", len(s.data)),
	)
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, ok := s.data[key]
	if !ok {
		return nil, ports.ErrKeyNotFound
	}
	return val, nil
}

func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = json.RawMessage(value)
	return s.flushLocked()
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return s.flushLocked()
}

func (s *FileStore) Close() error {
	return nil
}

// flushLocked writes the full key space to a temp file and renames it over
// the live one, so a crash mid-write leaves the previous state intact.
func (s *FileStore) flushLocked() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".caterpos-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
