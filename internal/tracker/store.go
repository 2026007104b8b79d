package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

const sessionFlagPrefix = "visit_tracked/"

// SessionStore remembers which sessions already produced an acknowledged visit.
type SessionStore interface {
	Tracked(ctx context.Context, sessionID string) (bool, error)
	MarkTracked(ctx context.Context, sessionID string) error
	Close() error
}

type MemoryStore struct {
	mu      sync.RWMutex
	tracked map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tracked: make(map[string]struct{})}
}

func (s *MemoryStore) Tracked(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tracked[sessionID]
	return ok, nil
}

func (s *MemoryStore) MarkTracked(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[sessionID] = struct{}{}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// PebbleStore persists session flags so a restart does not re-post visits.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens the store at dir. An empty dir keeps it in memory.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{}
	if dir == "" {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open session store %q: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Tracked(ctx context.Context, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, closer, err := s.db.Get(sessionKey(sessionID))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read session flag: %w", err)
	}
	_ = closer.Close()
	return true, nil
}

func (s *PebbleStore) MarkTracked(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Set(sessionKey(sessionID), []byte("true"), pebble.Sync); err != nil {
		return fmt.Errorf("write session flag: %w", err)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func sessionKey(sessionID string) []byte {
	return []byte(sessionFlagPrefix + sessionID)
}
