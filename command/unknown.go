package command

import (
	"tinyredis/frame"
	"tinyredis/store"
)

// Unknown is dispatched for any verb Parse does not recognize. It is not a
// ParseError: the frame was perfectly well-formed, just naming a command
// this server does not implement.
type Unknown struct {
	Verb string
}

func (c Unknown) Apply(_ *store.Store, conn Conn) error {
	return conn.WriteFrame(frame.NewError("ERR unknown command '" + c.Verb + "'"))
}
