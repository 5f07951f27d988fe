package command

import (
	"tinyredis/frame"
	"tinyredis/store"
)

// Publish fans Message out to every current subscriber of Channel,
// replying with how many subscribers were registered when it was sent. A
// subscriber whose mailbox was full is counted, although the message is
// dropped for it.
type Publish struct {
	Channel string
	Message []byte
}

func parsePublish(p *Parser) (Command, error) {
	channel, err := p.NextString()
	if err != nil {
		return nil, err
	}
	message, err := p.NextBytes()
	if err != nil {
		return nil, err
	}
	if err := p.Finish(); err != nil {
		return nil, err
	}
	return Publish{Channel: channel, Message: message}, nil
}

func (c Publish) Apply(db *store.Store, conn Conn) error {
	n := db.Publish(c.Channel, c.Message)
	return conn.WriteFrame(frame.NewInteger(uint64(n)))
}
