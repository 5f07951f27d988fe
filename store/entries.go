package store

import "time"

// Get returns the value for key if present and not expired at the read
// instant. If present but expired, it removes the entry and its expiry row
// and reports absent, matching Redis's expire-on-access behavior.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if rec.expiresAt != nil && !rec.expiresAt.After(time.Now()) {
		s.removeLocked(key, rec)
		return nil, false
	}
	return rec.data, true
}

// Set atomically replaces any prior entry for key. A prior expiry row, if
// any, is removed; if the new entry carries a TTL, a fresh expiry row is
// inserted and the reaper is nudged when that deadline is earlier than
// whatever it was already waiting on.
func (s *Store) Set(key string, value []byte, ttl *time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[key]; ok && prev.expiresAt != nil {
		s.expiry.Delete(expiryKey{at: *prev.expiresAt, key: key})
	}

	rec := entryRecord{data: value}
	var shouldNudge bool
	if ttl != nil {
		at := time.Now().Add(*ttl)
		rec.expiresAt = &at
		s.expiry.Set(expiryKey{at: at, key: key})
		if earliest, ok := s.expiry.Min(); ok && earliest.at.Equal(at) && earliest.key == key {
			shouldNudge = true
		}
	}
	s.entries[key] = rec

	if shouldNudge {
		s.nudgeReaper()
	}
}

// Del removes key's entry and any expiry row, reporting whether it existed.
func (s *Store) Del(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[key]
	if !ok {
		return false
	}
	s.removeLocked(key, rec)
	return true
}

// removeLocked deletes key's entry and expiry row. Callers must hold s.mu.
func (s *Store) removeLocked(key string, rec entryRecord) {
	delete(s.entries, key)
	if rec.expiresAt != nil {
		s.expiry.Delete(expiryKey{at: *rec.expiresAt, key: key})
	}
}
