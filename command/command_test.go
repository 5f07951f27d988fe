package command

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tinyredis/frame"
	"tinyredis/store"
)

// fakeConn is an in-memory stand-in for a connection: ReadFrame drains a
// preloaded queue (io.EOF once exhausted), first waiting for readGate to
// close when one is set; WriteFrame records every frame sent to the peer,
// and Done fires only when closed.
type fakeConn struct {
	mu       sync.Mutex
	toRead   []frame.Frame
	written  []frame.Frame
	done     chan struct{}
	readGate chan struct{}
}

func newFakeConn(toRead ...frame.Frame) *fakeConn {
	return &fakeConn{toRead: toRead, done: make(chan struct{})}
}

func (c *fakeConn) WriteFrame(f frame.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, f)
	return nil
}

func (c *fakeConn) ReadFrame() (frame.Frame, error) {
	if c.readGate != nil {
		<-c.readGate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toRead) == 0 {
		return frame.Frame{}, io.EOF
	}
	f := c.toRead[0]
	c.toRead = c.toRead[1:]
	return f, nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Logger() *zap.Logger { return zap.NewNop() }

func (c *fakeConn) Written() []frame.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame.Frame(nil), c.written...)
}

func req(args ...string) frame.Frame {
	items := make([]frame.Frame, len(args))
	for i, a := range args {
		items[i] = frame.NewBulkString(a)
	}
	return frame.NewArray(items...)
}

func TestPingWithoutArgument(t *testing.T) {
	db := store.New()
	conn := newFakeConn()
	cmd, err := Parse(req("PING"))
	require.NoError(t, err)
	require.NoError(t, cmd.Apply(db, conn))
	assert.Equal(t, []frame.Frame{frame.NewSimple("PONG")}, conn.Written())
}

func TestPingEchoesMessage(t *testing.T) {
	db := store.New()
	conn := newFakeConn()
	cmd, err := Parse(req("PING", "hello"))
	require.NoError(t, err)
	require.NoError(t, cmd.Apply(db, conn))
	assert.Equal(t, []frame.Frame{frame.NewBulkString("hello")}, conn.Written())
}

func TestGetSetDelRoundTrip(t *testing.T) {
	db := store.New()
	conn := newFakeConn()

	set, err := Parse(req("SET", "foo", "bar"))
	require.NoError(t, err)
	require.NoError(t, set.Apply(db, conn))

	get, err := Parse(req("GET", "foo"))
	require.NoError(t, err)
	require.NoError(t, get.Apply(db, conn))

	del, err := Parse(req("DEL", "foo"))
	require.NoError(t, err)
	require.NoError(t, del.Apply(db, conn))

	missing, err := Parse(req("GET", "foo"))
	require.NoError(t, err)
	require.NoError(t, missing.Apply(db, conn))

	written := conn.Written()
	require.Len(t, written, 4)
	assert.Equal(t, frame.NewSimple("OK"), written[0])
	assert.Equal(t, frame.NewBulkString("bar"), written[1])
	assert.Equal(t, frame.NewInteger(1), written[2])
	assert.Equal(t, frame.NullBulk(), written[3])
}

func TestSetWithPxExpires(t *testing.T) {
	db := store.New()
	conn := newFakeConn()

	cmd, err := Parse(req("SET", "x", "y", "px", "10"))
	require.NoError(t, err)
	require.NoError(t, cmd.Apply(db, conn))

	_, stillThere := db.Get("x")
	assert.True(t, stillThere)

	time.Sleep(30 * time.Millisecond)
	_, ok := db.Get("x")
	assert.False(t, ok)
}

func TestSetRejectsNonPositivePx(t *testing.T) {
	_, err := Parse(req("SET", "x", "y", "px", "0"))
	assert.Error(t, err)

	_, err = Parse(req("SET", "x", "y", "px", "-5"))
	assert.Error(t, err)
}

func TestUnknownVerbIsNotAParseError(t *testing.T) {
	db := store.New()
	conn := newFakeConn()

	cmd, err := Parse(req("FROBNICATE", "x"))
	require.NoError(t, err)
	require.NoError(t, cmd.Apply(db, conn))

	written := conn.Written()
	require.Len(t, written, 1)
	assert.Equal(t, frame.Error, written[0].Kind)
}

func TestPublishWithNoSubscribersReturnsZero(t *testing.T) {
	db := store.New()
	conn := newFakeConn()

	cmd, err := Parse(req("PUBLISH", "ch", "hello"))
	require.NoError(t, err)
	require.NoError(t, cmd.Apply(db, conn))
	assert.Equal(t, []frame.Frame{frame.NewInteger(0)}, conn.Written())
}

func TestSubscribeConfirmsThenExitsWhenUnsubscribedAll(t *testing.T) {
	db := store.New()
	conn := newFakeConn(req("UNSUBSCRIBE"))

	cmd, err := Parse(req("SUBSCRIBE", "ch"))
	require.NoError(t, err)
	require.NoError(t, cmd.Apply(db, conn))

	written := conn.Written()
	require.Len(t, written, 2)
	assert.Equal(t, frame.NewArray(
		frame.NewBulkString("subscribe"), frame.NewBulkString("ch"), frame.NewInteger(1),
	), written[0])
	assert.Equal(t, frame.NewArray(
		frame.NewBulkString("unsubscribe"), frame.NewBulkString("ch"), frame.NewInteger(0),
	), written[1])
}

func TestSubscribeDeliversPublishedMessage(t *testing.T) {
	db := store.New()
	conn := newFakeConn(req("UNSUBSCRIBE", "ch"))
	// Hold the UNSUBSCRIBE back until the message has been delivered.
	conn.readGate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		cmd, err := Parse(req("SUBSCRIBE", "ch"))
		if err != nil {
			done <- err
			return
		}
		done <- cmd.Apply(db, conn)
	}()

	require.Eventually(t, func() bool {
		return db.Publish("ch", []byte("hi")) == 1
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return len(conn.Written()) >= 2
	}, time.Second, time.Millisecond)
	close(conn.readGate)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscriber loop did not exit")
	}

	written := conn.Written()
	require.GreaterOrEqual(t, len(written), 2)
	found := false
	for _, f := range written {
		if f.Kind == frame.Array && len(f.Items) == 3 && f.Items[0].Str == "message" {
			found = true
			assert.Equal(t, "ch", f.Items[1].Str)
			assert.Equal(t, []byte("hi"), f.Items[2].Bytes)
		}
	}
	assert.True(t, found)
}

func TestSubscribeModeRejectsOtherVerbs(t *testing.T) {
	db := store.New()
	conn := newFakeConn(req("GET", "foo"), req("UNSUBSCRIBE"))

	cmd, err := Parse(req("SUBSCRIBE", "ch"))
	require.NoError(t, err)
	require.NoError(t, cmd.Apply(db, conn))

	written := conn.Written()
	require.Len(t, written, 3)
	assert.Equal(t, frame.Error, written[1].Kind)
}

func TestSubscribeExitsOnReadError(t *testing.T) {
	db := store.New()
	conn := newFakeConn() // empty queue -> ReadFrame returns io.EOF immediately

	cmd, err := Parse(req("SUBSCRIBE", "ch"))
	require.NoError(t, err)
	err = cmd.Apply(db, conn)
	assert.True(t, errors.Is(err, io.EOF))
}
