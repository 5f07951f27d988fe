package store

import (
	"time"

	"go.uber.org/zap"
)

// RunReaper is the background expiry reaper: it repeatedly inspects the
// earliest row of the expiry index, removing it once its deadline has
// passed, and otherwise sleeping until that deadline, an earlier SET
// (via Store.wake), or shutdown. It returns promptly when done fires; a
// final snapshot is the listener's responsibility, not the reaper's.
func (s *Store) RunReaper(done <-chan struct{}, log *zap.Logger) {
	for {
		wait, expired := s.nextDeadline(log)
		if expired {
			continue
		}

		var timer *time.Timer
		var timerC <-chan time.Time
		if wait >= 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-done:
			if timer != nil {
				timer.Stop()
			}
			log.Debug("expiry reaper stopping on shutdown")
			return
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
		}
	}
}

// nextDeadline reports how long to sleep until the earliest expiry row is
// due. If a row is already due, it is reaped immediately and expired=true
// is returned so the caller re-checks without sleeping. wait < 0 means
// there is no row to wait on at all (sleep indefinitely, i.e. until wake
// or done).
func (s *Store) nextDeadline(log *zap.Logger) (wait time.Duration, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	earliest, ok := s.expiry.Min()
	if !ok {
		return -1, false
	}

	now := time.Now()
	if !earliest.at.After(now) {
		rec, ok := s.entries[earliest.key]
		if !ok {
			// Internal invariant violation: an expiry row with no matching
			// entry means removeLocked failed to keep the index and the map
			// in lockstep somewhere. This is not recoverable state — fatal
			// per the Internal error classification, not silently dropped.
			log.Fatal("expiry index row has no matching entry",
				zap.String("key", earliest.key),
				zap.Time("expires_at", earliest.at),
			)
		}
		s.removeLocked(earliest.key, rec)
		return 0, true
	}
	return earliest.at.Sub(now), false
}
