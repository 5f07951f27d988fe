package command

import (
	"go.uber.org/zap"

	"tinyredis/frame"
	"tinyredis/store"
)

// Save synchronously snapshots the database to disk, replying with an
// Error frame (rather than closing the connection) if the write fails —
// snapshot IO failures are logged and reported to the SAVE caller, not
// treated as connection-fatal. It always targets the database's own
// configured snapshot path (set from --rdb-path at startup), the same
// path the listener's periodic and shutdown saves use — one snapshot
// file per process, not a command-local default.
type Save struct{}

func parseSave(p *Parser) (Command, error) {
	if err := p.Finish(); err != nil {
		return nil, err
	}
	return Save{}, nil
}

func (c Save) Apply(db *store.Store, conn Conn) error {
	if err := db.Save(db.SnapshotPath()); err != nil {
		conn.Logger().Error("SAVE failed", zap.Error(err))
		return conn.WriteFrame(frame.NewError("ERR save failed: " + err.Error()))
	}
	return conn.WriteFrame(frame.NewSimple("OK"))
}
