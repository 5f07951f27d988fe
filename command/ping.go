package command

import (
	"tinyredis/frame"
	"tinyredis/store"
)

// Ping replies PONG, or echoes back a single optional message argument.
type Ping struct {
	Message *string
}

func parsePing(p *Parser) (Command, error) {
	switch p.Remaining() {
	case 0:
		return Ping{}, nil
	case 1:
		msg, err := p.NextString()
		if err != nil {
			return nil, err
		}
		return Ping{Message: &msg}, nil
	default:
		return nil, parseErrf("PING takes at most one argument")
	}
}

func (c Ping) Apply(_ *store.Store, conn Conn) error {
	if c.Message != nil {
		return conn.WriteFrame(frame.NewBulkString(*c.Message))
	}
	return conn.WriteFrame(frame.NewSimple("PONG"))
}
