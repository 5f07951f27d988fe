// Package store implements the shared, in-memory database: the entry map
// with key expiry, the publish/subscribe channel registry, and binary
// snapshot save/load for crash recovery. Everything exported here is safe
// for concurrent use from many connection goroutines plus the background
// expiry reaper.
package store

import (
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// entryRecord is what the map actually stores: the payload plus an
// optional absolute expiry instant computed at SET time.
type entryRecord struct {
	data      []byte
	expiresAt *time.Time
}

// expiryKey is one row of the expiry index: an (expires_at, key) pair,
// ordered primarily by instant then by key to break ties deterministically.
type expiryKey struct {
	at  time.Time
	key string
}

func lessExpiryKey(a, b expiryKey) bool {
	if a.at.Equal(b.at) {
		return a.key < b.key
	}
	return a.at.Before(b.at)
}

// defaultSnapshotPath is used when nothing has configured a path via
// SetSnapshotPath — only relevant to stores built directly in tests.
const defaultSnapshotPath = "dump.rdb"

// Store is the single logical shared state reachable from every
// connection: entries, the expiry index, and the channel registry, all
// behind one coarse mutex as described by the concurrency model — reads
// and writes never suspend while holding it.
type Store struct {
	mu      sync.Mutex
	entries map[string]entryRecord
	expiry  *btree.BTreeG[expiryKey]

	channels map[string]*Bus

	// wake nudges the expiry reaper when a SET schedules an expiry earlier
	// than anything it was already waiting on. Buffered so SET never blocks.
	wake chan struct{}

	// snapshotPath is the single configured persistence target: the
	// listener's shutdown save, its periodic save, and a client-issued
	// SAVE command all resolve to this same path, so there is exactly one
	// snapshot file per process as required by the external interface.
	snapshotPath string
}

// New constructs an empty Store. The server's main builds exactly one of
// these and hands it to the listener, which shares it with every handler
// and with the expiry reaper.
func New() *Store {
	return &Store{
		entries:  make(map[string]entryRecord),
		expiry:   btree.NewBTreeG(lessExpiryKey),
		channels: make(map[string]*Bus),
		wake:     make(chan struct{}, 1),
	}
}

// SetSnapshotPath configures the path used by SnapshotPath. The server's
// main calls this once at startup, after loading the snapshot, from the
// configured --rdb-path before any connection or background task can
// observe the store.
func (s *Store) SetSnapshotPath(path string) {
	s.mu.Lock()
	s.snapshotPath = path
	s.mu.Unlock()
}

// SnapshotPath reports the store's configured persistence target, for
// every caller that needs to save or load this store's state — the
// listener's shutdown and periodic saves, and the SAVE command.
func (s *Store) SnapshotPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshotPath == "" {
		return defaultSnapshotPath
	}
	return s.snapshotPath
}

func (s *Store) nudgeReaper() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
