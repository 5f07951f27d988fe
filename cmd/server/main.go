// Command tinyredis-server runs the TCP key-value service: it loads any
// existing snapshot, starts accepting connections, and on SIGINT/SIGTERM
// stops accepting and writes one final snapshot before exiting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tinyredis/server"
	"tinyredis/shutdown"
	"tinyredis/store"
)

func main() {
	port := flag.Uint16("port", 6379, "TCP port to listen on")
	rdbPath := flag.String("rdb-path", "dump.rdb", "snapshot file path")
	snapshotInterval := flag.Duration("snapshot-interval", 5*time.Minute, "periodic snapshot interval (0 disables)")
	logLevel := flag.String("log-level", "info", "log level: debug|info|warn|error")
	flag.Parse()

	log, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tinyredis-server:", err)
		os.Exit(1)
	}
	defer log.Sync()

	db := store.New()
	if err := db.Load(*rdbPath); err != nil {
		log.Fatal("failed to load snapshot", zap.String("path", *rdbPath), zap.Error(err))
	}
	db.SetSnapshotPath(*rdbPath)

	bus := shutdown.New()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("shutdown requested")
		bus.Notify()
	}()

	addr := ":" + strconv.Itoa(int(*port))
	listener := server.New(server.Config{
		Addr:             addr,
		SnapshotInterval: *snapshotInterval,
		Log:              log,
	}, db, bus)

	if err := listener.Run(); err != nil {
		log.Fatal("server exited with error", zap.Error(errors.WithStack(err)))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "invalid --log-level %q", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
