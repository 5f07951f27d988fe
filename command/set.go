package command

import (
	"strings"
	"time"

	"tinyredis/frame"
	"tinyredis/store"
)

// Set stores Value under Key, replacing any prior value and expiry. A
// non-nil TTL makes the key expire that far in the future; nil means no
// expiry.
type Set struct {
	Key   string
	Value []byte
	TTL   *time.Duration
}

// parseSet handles both `SET key value` and `SET key value PX <millis>`.
// The PX keyword is matched case-insensitively; its argument must be a
// strictly positive integer, matching the store's expiry semantics (an
// expiry in the past or at zero would mean "already expired", which SET
// does not model — use DEL for that).
func parseSet(p *Parser) (Command, error) {
	key, err := p.NextString()
	if err != nil {
		return nil, err
	}
	value, err := p.NextBytes()
	if err != nil {
		return nil, err
	}

	cmd := Set{Key: key, Value: value}
	if p.Remaining() == 0 {
		return cmd, nil
	}

	opt, err := p.NextString()
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(opt, "PX") {
		return nil, parseErrf("unsupported SET option %q", opt)
	}
	millis, err := p.NextInt()
	if err != nil {
		return nil, err
	}
	if millis <= 0 {
		return nil, parseErrf("PX requires a positive number of milliseconds")
	}
	if err := p.Finish(); err != nil {
		return nil, err
	}

	ttl := time.Duration(millis) * time.Millisecond
	cmd.TTL = &ttl
	return cmd, nil
}

func (c Set) Apply(db *store.Store, conn Conn) error {
	db.Set(c.Key, c.Value, c.TTL)
	return conn.WriteFrame(frame.NewSimple("OK"))
}
