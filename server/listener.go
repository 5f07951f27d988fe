// Package server hosts the TCP accept loop and per-connection handler: the
// two outermost layers that turn a *store.Store into a running service.
package server

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tinyredis/shutdown"
	"tinyredis/store"
)

// Config bundles what the listener needs beyond the store itself. The
// snapshot path itself is not here: it lives on *store.Store (set via
// SetSnapshotPath) so the periodic/shutdown saves below and a
// client-issued SAVE command always agree on a single target file.
type Config struct {
	Addr             string
	SnapshotInterval time.Duration
	Log              *zap.Logger
}

// Listener owns the TCP socket, the shared database handle, and the
// shutdown bus every task selects on. It is the process's single point of
// coordinated startup and shutdown: on shutdown it stops accepting, closes
// every live connection, waits for every handler goroutine to return, and
// only then takes the final snapshot.
type Listener struct {
	cfg      Config
	db       *store.Store
	shutdown *shutdown.Bus
	log      *zap.Logger

	connsMu  sync.Mutex
	conns    map[*Conn]struct{}
	handlers sync.WaitGroup
}

// New constructs a Listener; the caller supplies the store (already loaded
// from any existing snapshot) and a shutdown bus shared with the caller's
// signal-handling goroutine.
func New(cfg Config, db *store.Store, bus *shutdown.Bus) *Listener {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{cfg: cfg, db: db, shutdown: bus, log: log, conns: make(map[*Conn]struct{})}
}

// Run binds the listening socket and blocks, supervising three tasks with
// an errgroup: the accept loop, the expiry reaper, and the periodic
// snapshot ticker. Any one of them returning an error (other than a clean
// shutdown) tears down the group. On shutdown every tracked connection is
// closed and Run waits for all handler goroutines to drain before the
// final save, so the snapshot reflects a database with no more
// in-flight mutations.
func (l *Listener) Run() error {
	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "server: listen on %s", l.cfg.Addr)
	}
	l.log.Info("listening", zap.String("addr", l.cfg.Addr))

	group := &errgroup.Group{}
	group.Go(func() error {
		<-l.shutdown.Done()
		ln.Close()
		l.closeAllConns()
		return nil
	})
	group.Go(func() error {
		l.db.RunReaper(l.shutdown.Done(), l.log.Named("reaper"))
		return nil
	})
	if l.cfg.SnapshotInterval > 0 {
		group.Go(func() error {
			l.runSnapshotTicker()
			return nil
		})
	}
	group.Go(func() error {
		err := l.acceptLoop(ln)
		if err != nil {
			// Fire the shutdown bus so the other tasks stop as well.
			l.shutdown.Notify()
		}
		return err
	})

	err = group.Wait()
	l.handlers.Wait()

	path := l.db.SnapshotPath()
	if saveErr := l.db.Save(path); saveErr != nil {
		l.log.Error("final snapshot failed", zap.Error(saveErr))
	} else {
		l.log.Info("final snapshot written", zap.String("path", path))
	}

	return err
}

// acceptLoop accepts sockets until the listener is closed by the shutdown
// watcher goroutine in Run, at which point Accept returns an error that is
// expected and not propagated. Every accepted connection is tracked so
// shutdown can close it and waited on via l.handlers so Run doesn't save
// a snapshot while a handler might still be mutating the database.
func (l *Listener) acceptLoop(ln net.Listener) error {
	for {
		raw, err := ln.Accept()
		if err != nil {
			if l.shutdown.Requested() {
				return nil
			}
			return errors.Wrap(err, "server: accept")
		}
		conn := newConn(raw, l.db, l.shutdown, l.log)
		l.trackConn(conn)
		l.handlers.Add(1)
		go func() {
			defer l.handlers.Done()
			defer l.untrackConn(conn)
			conn.serve()
		}()
	}
}

func (l *Listener) trackConn(conn *Conn) {
	l.connsMu.Lock()
	l.conns[conn] = struct{}{}
	l.connsMu.Unlock()
}

func (l *Listener) untrackConn(conn *Conn) {
	l.connsMu.Lock()
	delete(l.conns, conn)
	l.connsMu.Unlock()
}

// closeAllConns force-closes every live connection's socket on shutdown,
// matching the teacher's own Shutdown: even a handler that were to miss
// its own shutdown signal still gets unblocked by the socket itself
// erroring out of its pending read.
func (l *Listener) closeAllConns() {
	l.connsMu.Lock()
	defer l.connsMu.Unlock()
	for conn := range l.conns {
		conn.Close()
	}
}

// runSnapshotTicker saves the database on a fixed interval so a crash
// between graceful shutdowns loses at most one tick's worth of writes.
func (l *Listener) runSnapshotTicker() {
	ticker := time.NewTicker(l.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.shutdown.Done():
			return
		case <-ticker.C:
			path := l.db.SnapshotPath()
			if err := l.db.Save(path); err != nil {
				l.log.Error("periodic snapshot failed", zap.Error(err))
			} else {
				l.log.Debug("periodic snapshot written", zap.String("path", path))
			}
		}
	}
}
