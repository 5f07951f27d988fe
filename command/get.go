package command

import (
	"tinyredis/frame"
	"tinyredis/store"
)

// Get fetches the value stored under Key, replying with a null bulk when
// absent or expired.
type Get struct {
	Key string
}

func parseGet(p *Parser) (Command, error) {
	key, err := p.NextString()
	if err != nil {
		return nil, err
	}
	if err := p.Finish(); err != nil {
		return nil, err
	}
	return Get{Key: key}, nil
}

func (c Get) Apply(db *store.Store, conn Conn) error {
	v, ok := db.Get(c.Key)
	if !ok {
		return conn.WriteFrame(frame.NullBulk())
	}
	return conn.WriteFrame(frame.NewBulk(v))
}
