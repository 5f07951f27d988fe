// Store tests: the invariants and end-to-end scenarios spelled out for the
// database layer — expiry-on-access, snapshot round-tripping, and
// publish/subscribe fan-out counts.
package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSetGetDel(t *testing.T) {
	s := New()

	s.Set("foo", []byte("bar"), nil)
	v, ok := s.Get("foo")
	require.True(t, ok)
	assert.Equal(t, []byte("bar"), v)

	removed := s.Del("foo")
	assert.True(t, removed)

	_, ok = s.Get("foo")
	assert.False(t, ok)

	removed = s.Del("foo")
	assert.False(t, removed)
}

func TestSetOverwriteClearsOldExpiry(t *testing.T) {
	s := New()
	ttl := time.Millisecond
	s.Set("k", []byte("v1"), &ttl)
	s.Set("k", []byte("v2"), nil)

	time.Sleep(5 * time.Millisecond)
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v)
}

func TestExpiryOnAccess(t *testing.T) {
	s := New()
	ttl := 20 * time.Millisecond
	s.Set("x", []byte("y"), &ttl)

	time.Sleep(60 * time.Millisecond)
	_, ok := s.Get("x")
	assert.False(t, ok)

	s.mu.Lock()
	_, stillIndexed := s.entries["x"]
	_, hasRow := s.expiry.Min()
	s.mu.Unlock()
	assert.False(t, stillIndexed)
	assert.False(t, hasRow)
}

func TestReaperRemovesExpiredEntries(t *testing.T) {
	s := New()
	ttl := 10 * time.Millisecond
	s.Set("x", []byte("y"), &ttl)

	done := make(chan struct{})
	go s.RunReaper(done, zap.NewNop())
	defer close(done)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		_, ok := s.entries["x"]
		s.mu.Unlock()
		return !ok
	}, time.Second, time.Millisecond)
}

func TestPublishSubscribeFanOut(t *testing.T) {
	s := New()

	subA, countA := s.Subscribe("ch")
	assert.Equal(t, 1, countA)
	subB, countB := s.Subscribe("ch")
	assert.Equal(t, 2, countB)

	n := s.Publish("ch", []byte("hello"))
	assert.Equal(t, 2, n)

	for _, sub := range []*Subscription{subA, subB} {
		select {
		case msg := <-sub.Messages():
			assert.Equal(t, "ch", msg.Channel)
			assert.Equal(t, []byte("hello"), msg.Payload)
		case <-time.After(time.Second):
			t.Fatal("expected a message")
		}
	}
}

func TestPublishWithNoSubscribersReturnsZero(t *testing.T) {
	s := New()
	assert.Equal(t, 0, s.Publish("nobody-home", []byte("x")))
}

func TestUnsubscribeDropsBusWhenEmpty(t *testing.T) {
	s := New()
	sub, _ := s.Subscribe("ch")
	remaining := s.Unsubscribe(sub)
	assert.Equal(t, 0, remaining)

	s.mu.Lock()
	_, exists := s.channels["ch"]
	s.mu.Unlock()
	assert.False(t, exists)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New()
	s.Set("a", []byte("1"), nil)
	longTTL := time.Hour
	s.Set("b", []byte("2"), &longTTL)
	shortTTL := time.Millisecond
	s.Set("expired", []byte("3"), &shortTTL)
	time.Sleep(5 * time.Millisecond)

	path := filepath.Join(t.TempDir(), "dump.rdb")
	require.NoError(t, s.Save(path))

	fresh := New()
	require.NoError(t, fresh.Load(path))

	v, ok := fresh.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	v, ok = fresh.Get("b")
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)

	_, ok = fresh.Get("expired")
	assert.False(t, ok)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	s := New()
	err := s.Load(filepath.Join(t.TempDir(), "missing.rdb"))
	assert.NoError(t, err)
}
