package command

import (
	"tinyredis/frame"
	"tinyredis/store"
)

// Del removes one or more keys, replying with how many actually existed.
type Del struct {
	Keys []string
}

func parseDel(p *Parser) (Command, error) {
	if p.Remaining() == 0 {
		return nil, parseErrf("DEL requires at least one key")
	}
	keys := make([]string, 0, p.Remaining())
	for p.Remaining() > 0 {
		key, err := p.NextString()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return Del{Keys: keys}, nil
}

func (c Del) Apply(db *store.Store, conn Conn) error {
	var removed uint64
	for _, key := range c.Keys {
		if db.Del(key) {
			removed++
		}
	}
	return conn.WriteFrame(frame.NewInteger(removed))
}
