package frame

import "errors"

// ErrIncomplete is returned by Decode when the underlying stream ended
// partway through a frame. Decode itself blocks until more bytes arrive, so
// this only happens once the peer is gone; the connection handler treats it
// as the connection being closed.
var ErrIncomplete = errors.New("frame: incomplete")

// ProtocolError reports malformed wire bytes. It is fatal for the
// connection: the handler attempts a best-effort Error reply and closes.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "frame: protocol error: " + e.Reason }

func protoErr(reason string) error { return &ProtocolError{Reason: reason} }
