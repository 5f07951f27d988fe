// Package command implements the seven recognized verbs (plus UNKNOWN)
// as value objects: each is built from a decoded Array frame and knows how
// to execute itself against the store and write its own reply frame.
package command

import (
	"strings"

	"go.uber.org/zap"

	"tinyredis/frame"
	"tinyredis/store"
)

// Conn is what a Command needs from the connection hosting it: writing
// frames, and — for SUBSCRIBE, which takes over the read loop and handles
// UNSUBSCRIBE inside it — reading further frames, observing shutdown, and
// logging (SUBSCRIBE's lag warning). Defined here rather than imported from the server package to
// avoid a dependency cycle; *server.Conn satisfies it structurally.
type Conn interface {
	WriteFrame(frame.Frame) error
	ReadFrame() (frame.Frame, error)
	Done() <-chan struct{}
	Logger() *zap.Logger
}

// Command is one parsed request, ready to run against a Store and reply
// on a Conn. Apply returns an error only for a fatal I/O failure; anything
// recoverable (bad arguments, unknown verb, a disallowed verb while
// subscribed) is reported by writing an Error frame and returning nil.
type Command interface {
	Apply(db *store.Store, conn Conn) error
}

// Parse decodes a request Array frame into a Command. It returns a
// *ParseError for malformed arguments (wrong arity, bad UTF-8, a
// non-positive SET expiry) — the caller turns that directly into an Error
// reply without calling Apply. An unrecognized verb is not a parse error:
// it becomes an Unknown command, whose Apply writes the Error reply.
func Parse(f frame.Frame) (Command, error) {
	p, err := NewParser(f)
	if err != nil {
		return nil, err
	}
	verb, err := p.NextString()
	if err != nil {
		return nil, err
	}

	switch strings.ToUpper(verb) {
	case "PING":
		return parsePing(p)
	case "GET":
		return parseGet(p)
	case "SET":
		return parseSet(p)
	case "DEL":
		return parseDel(p)
	case "PUBLISH":
		return parsePublish(p)
	case "SUBSCRIBE":
		return parseSubscribe(p)
	case "SAVE":
		return parseSave(p)
	default:
		return Unknown{Verb: verb}, nil
	}
}
