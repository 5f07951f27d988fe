package command

import (
	"strings"

	"go.uber.org/zap"

	"tinyredis/frame"
	"tinyredis/store"
)

// Subscribe enters subscriber mode for one or more channels. Its Apply does
// not return until the connection falls back out of subscriber mode (the
// subscription set drains to empty), the connection closes, or shutdown is
// signalled — it owns the whole sub-state-machine described in the
// handler's subscriber mode.
type Subscribe struct {
	Channels []string
}

func parseSubscribe(p *Parser) (Command, error) {
	if p.Remaining() == 0 {
		return nil, parseErrf("SUBSCRIBE requires at least one channel")
	}
	channels := make([]string, 0, p.Remaining())
	for p.Remaining() > 0 {
		ch, err := p.NextString()
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return Subscribe{Channels: channels}, nil
}

// namedMessage pairs a delivered message with the channel forwarder that
// produced it, since the aggregate channel merges every active subscription.
type namedMessage struct {
	channel string
	message store.Message
}

// readResult is one outcome of a single ReadFrame call run on its own
// goroutine, so the select loop below never has two reads racing the same
// connection at once.
type readResult struct {
	frame frame.Frame
	err   error
}

func (c Subscribe) Apply(db *store.Store, conn Conn) error {
	loop := &subscriberLoop{
		db:       db,
		conn:     conn,
		subs:     make(map[string]*store.Subscription),
		stops:    make(map[string]chan struct{}),
		incoming: make(chan namedMessage, subscriberAggregateBuffer),
	}
	defer loop.stopAll()

	for _, ch := range c.Channels {
		if err := loop.subscribe(ch); err != nil {
			return err
		}
	}
	return loop.run()
}

// subscriberAggregateBuffer bounds how many messages across all of a
// connection's subscriptions may be queued waiting to be written to the
// socket before a slow per-channel forwarder simply blocks (the store's own
// per-subscriber mailbox already drops on lag; this is just the merge
// point).
const subscriberAggregateBuffer = 64

type subscriberLoop struct {
	db       *store.Store
	conn     Conn
	subs     map[string]*store.Subscription
	stops    map[string]chan struct{}
	incoming chan namedMessage
}

func (l *subscriberLoop) subscribe(channel string) error {
	if _, already := l.subs[channel]; already {
		return l.confirm("subscribe", channel, len(l.subs))
	}
	sub, _ := l.db.Subscribe(channel)
	l.subs[channel] = sub
	stop := make(chan struct{})
	l.stops[channel] = stop
	go l.forward(channel, sub, stop)
	return l.confirm("subscribe", channel, len(l.subs))
}

func (l *subscriberLoop) unsubscribe(channel string) error {
	sub, ok := l.subs[channel]
	if !ok {
		return l.confirm("unsubscribe", channel, len(l.subs))
	}
	l.db.Unsubscribe(sub)
	close(l.stops[channel])
	delete(l.stops, channel)
	delete(l.subs, channel)
	return l.confirm("unsubscribe", channel, len(l.subs))
}

func (l *subscriberLoop) unsubscribeAll() error {
	if len(l.subs) == 0 {
		return nil
	}
	channels := make([]string, 0, len(l.subs))
	for ch := range l.subs {
		channels = append(channels, ch)
	}
	for _, ch := range channels {
		if err := l.unsubscribe(ch); err != nil {
			return err
		}
	}
	return nil
}

func (l *subscriberLoop) stopAll() {
	for _, stop := range l.stops {
		close(stop)
	}
}

func (l *subscriberLoop) confirm(kind, channel string, count int) error {
	return l.conn.WriteFrame(frame.NewArray(
		frame.NewBulkString(kind),
		frame.NewBulkString(channel),
		frame.NewInteger(uint64(count)),
	))
}

// forward drains one subscription's mailbox into the loop's aggregate
// channel until told to stop. It never blocks the store's publisher: that
// non-blocking-send/drop decision already happened inside Store.Publish.
// Each delivery also checks Dropped(): a slow consumer that has fallen
// behind resumes forwarding from wherever the mailbox is now, so a warning
// is logged rather than the gap passing unnoticed.
func (l *subscriberLoop) forward(channel string, sub *store.Subscription, stop <-chan struct{}) {
	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if n := sub.Dropped(); n > 0 {
				l.conn.Logger().Warn("subscriber lagging, dropped messages",
					zap.String("channel", channel),
					zap.Uint64("dropped", n),
				)
			}
			select {
			case l.incoming <- namedMessage{channel: channel, message: msg}:
			case <-stop:
				return
			}
		case <-stop:
			return
		}
	}
}

func (l *subscriberLoop) readFrame() <-chan readResult {
	out := make(chan readResult, 1)
	go func() {
		f, err := l.conn.ReadFrame()
		out <- readResult{frame: f, err: err}
	}()
	return out
}

// run multiplexes subscription deliveries against incoming socket frames
// until the subscription set empties out, the connection goes away, or
// shutdown is signalled.
func (l *subscriberLoop) run() error {
	pending := l.readFrame()
	for {
		select {
		case nm := <-l.incoming:
			if err := l.conn.WriteFrame(frame.NewArray(
				frame.NewBulkString("message"),
				frame.NewBulkString(nm.channel),
				frame.NewBulk(nm.message.Payload),
			)); err != nil {
				return err
			}

		case res := <-pending:
			if res.err != nil {
				return res.err
			}
			if err := l.handleIncoming(res.frame); err != nil {
				return err
			}
			if len(l.subs) == 0 {
				return nil
			}
			pending = l.readFrame()

		case <-l.conn.Done():
			return nil
		}
	}
}

// handleIncoming restricts subscriber mode to further SUBSCRIBE and
// UNSUBSCRIBE requests; anything else is a mode violation reported as an
// Error frame while the subscription set is preserved.
func (l *subscriberLoop) handleIncoming(f frame.Frame) error {
	p, err := NewParser(f)
	if err != nil {
		return l.conn.WriteFrame(frame.NewError("ERR " + err.Error()))
	}
	verb, err := p.NextString()
	if err != nil {
		return l.conn.WriteFrame(frame.NewError("ERR " + err.Error()))
	}

	switch strings.ToUpper(verb) {
	case "SUBSCRIBE":
		if p.Remaining() == 0 {
			return l.conn.WriteFrame(frame.NewError("ERR SUBSCRIBE requires at least one channel"))
		}
		for p.Remaining() > 0 {
			ch, err := p.NextString()
			if err != nil {
				return l.conn.WriteFrame(frame.NewError("ERR " + err.Error()))
			}
			if err := l.subscribe(ch); err != nil {
				return err
			}
		}
		return nil

	case "UNSUBSCRIBE":
		if p.Remaining() == 0 {
			return l.unsubscribeAll()
		}
		for p.Remaining() > 0 {
			ch, err := p.NextString()
			if err != nil {
				return l.conn.WriteFrame(frame.NewError("ERR " + err.Error()))
			}
			if err := l.unsubscribe(ch); err != nil {
				return err
			}
		}
		return nil

	default:
		return l.conn.WriteFrame(frame.NewError("ERR '" + verb + "' not allowed while in subscriber mode"))
	}
}
