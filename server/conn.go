package server

import (
	"bufio"
	"errors"
	"io"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tinyredis/command"
	"tinyredis/frame"
	"tinyredis/shutdown"
	"tinyredis/store"
)

// Conn is one accepted socket plus the buffered codec state around it. It
// implements command.Conn so command Apply methods can write replies and,
// for SUBSCRIBE, read further frames and observe shutdown without the
// command package importing server.
type Conn struct {
	id       string
	raw      net.Conn
	reader   *bufio.Reader
	writer   *bufio.Writer
	db       *store.Store
	shutdown *shutdown.Bus
	log      *zap.Logger
}

// newConn wraps an accepted socket, tagging it with a correlation ID used
// in every log line for this connection's lifetime.
func newConn(raw net.Conn, db *store.Store, bus *shutdown.Bus, log *zap.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:       id,
		raw:      raw,
		reader:   bufio.NewReader(raw),
		writer:   bufio.NewWriter(raw),
		db:       db,
		shutdown: bus,
		log: log.With(
			zap.String("conn_id", id),
			zap.String("remote_addr", raw.RemoteAddr().String()),
		),
	}
}

// WriteFrame encodes f and flushes immediately: one reply (or subscriber
// push) per write, since pipelining is out of scope and buffering across
// writes would just add latency here.
func (c *Conn) WriteFrame(f frame.Frame) error {
	if err := frame.Encode(c.writer, f); err != nil {
		return err
	}
	return c.writer.Flush()
}

// ReadFrame decodes the next request frame from the socket.
func (c *Conn) ReadFrame() (frame.Frame, error) {
	return frame.Decode(c.reader)
}

// Done exposes the server-wide shutdown signal so SUBSCRIBE's sub-loop can
// select on it alongside socket reads.
func (c *Conn) Done() <-chan struct{} { return c.shutdown.Done() }

// Logger exposes this connection's scoped logger so command Apply methods
// (SUBSCRIBE's lag warning, in particular) can log without the command
// package depending on *server.Conn directly.
func (c *Conn) Logger() *zap.Logger { return c.log }

// Close closes the underlying socket. The listener calls this on every
// tracked connection at shutdown to unblock any handler promptly,
// regardless of what it's doing at the time.
func (c *Conn) Close() error { return c.raw.Close() }

// frameResult is one outcome of a ReadFrame call run on its own goroutine,
// so serve's select can race it against shutdown without ever blocking the
// select on a synchronous read.
type frameResult struct {
	frame frame.Frame
	err   error
}

func (c *Conn) readFrameAsync() <-chan frameResult {
	out := make(chan frameResult, 1)
	go func() {
		f, err := c.ReadFrame()
		out <- frameResult{frame: f, err: err}
	}()
	return out
}

// serve runs the connection's normal-mode loop: read a request, parse it,
// apply it, write the reply, repeat — racing each read against the
// shutdown signal per spec §4.5, the same way SUBSCRIBE's sub-loop races
// its socket reads against shutdown and subscription deliveries. A
// SUBSCRIBE command's Apply takes over the loop internally until the
// subscription set drains; when it returns, control is back here for the
// next request. Protocol errors close the connection after a best-effort
// Error reply.
func (c *Conn) serve() {
	defer c.raw.Close()

	pending := c.readFrameAsync()
	for {
		select {
		case <-c.shutdown.Done():
			return

		case res := <-pending:
			if res.err != nil {
				switch {
				case errors.Is(res.err, io.EOF):
					// peer closed; nothing more to do
				case errors.Is(res.err, frame.ErrIncomplete):
					c.log.Debug("connection closed mid-frame", zap.Error(res.err))
				default:
					c.log.Warn("protocol error, closing connection", zap.Error(res.err))
					_ = c.WriteFrame(frame.NewError("ERR " + res.err.Error()))
				}
				return
			}

			cmd, err := command.Parse(res.frame)
			if err != nil {
				_ = c.WriteFrame(frame.NewError("ERR " + err.Error()))
				pending = c.readFrameAsync()
				continue
			}

			if err := cmd.Apply(c.db, c); err != nil {
				c.log.Debug("connection closed while applying command", zap.Error(err))
				return
			}
			pending = c.readFrameAsync()
		}
	}
}
