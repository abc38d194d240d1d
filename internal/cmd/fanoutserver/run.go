// Package fanoutserver exposes a shared Run entrypoint used by cmd/fanoutd to
// start one adapter.Adapter per configured namespace over a shared Pebble
// store, plus the read-only admin HTTP surface.
//
// Grounded on the teacher's internal/cmd/server.Run: a signal-aware context
// layered over the caller's, ApplyConfig-built process logger redirected
// over the standard logger (Pebble logs through it), and ordered shutdown of
// the listening servers before the store is closed.
package fanoutserver

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gynzy/socket.io-mongo-adapter/internal/adapter"
	"github.com/gynzy/socket.io-mongo-adapter/internal/adminhttp"
	"github.com/gynzy/socket.io-mongo-adapter/internal/config"
	"github.com/gynzy/socket.io-mongo-adapter/internal/memhost"
	"github.com/gynzy/socket.io-mongo-adapter/internal/store/pebblestore"
	logpkg "github.com/gynzy/socket.io-mongo-adapter/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Options configures a fanout daemon process.
type Options struct {
	DataDir       string
	AdminAddr     string
	Namespaces    []string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        config.Config
	FilterExpr    string
}

const retentionSweepInterval = time.Minute

// Run opens the shared store, one adapter per namespace, and the admin HTTP
// surface, then blocks until ctx is canceled or interrupted.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.DataDir == "" {
		opts.DataDir = config.DefaultDataDir()
	}
	if len(opts.Namespaces) == 0 {
		opts.Namespaces = []string{"/"}
	}

	st, err := pebblestore.Open(pebblestore.Options{
		DataDir:       filepath.Join(opts.DataDir, "store"),
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
	})
	if err != nil {
		return fmt.Errorf("fanoutserver: open store: %w", err)
	}
	defer st.Close()

	logCfg := logpkg.Config{
		Level:  getenvDefault("FANOUT_LOG_LEVEL", "info"),
		Format: logpkg.FormatKind(getenvDefault("FANOUT_LOG_FORMAT", "text")),
	}
	procLogger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if l, perr := logpkg.ParseLevel(string(logCfg.Level)); perr == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	restoreStdLog := logpkg.RedirectStdLog(procLogger)
	defer restoreStdLog()

	procLogger.Info("starting fanout daemon",
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("admin", opts.AdminAddr),
		logpkg.Any("namespaces", opts.Namespaces),
		logpkg.Str("level", logCfg.Level),
	)

	adapters := make(map[string]*adapter.Adapter, len(opts.Namespaces))
	for _, nsp := range opts.Namespaces {
		a, err := adapter.Open(adapter.Options{
			Nsp:        nsp,
			Store:      st,
			Host:       memhost.New(),
			Config:     opts.Config,
			Logger:     procLogger.With(logpkg.Str("nsp", nsp)),
			FilterExpr: opts.FilterExpr,
		})
		if err != nil {
			for _, opened := range adapters {
				_ = opened.Close()
			}
			return fmt.Errorf("fanoutserver: open adapter %q: %w", nsp, err)
		}
		adapters[nsp] = a
	}
	defer func() {
		for _, a := range adapters {
			_ = a.Close()
		}
	}()

	admin := adminhttp.New(adapters)
	adminErrCh := make(chan error, 1)
	go func() { adminErrCh <- admin.ListenAndServe(sctx, opts.AdminAddr) }()

	retentionTicker := time.NewTicker(retentionSweepInterval)
	defer retentionTicker.Stop()

	for {
		select {
		case <-sctx.Done():
			admin.Close()
			return nil
		case err := <-adminErrCh:
			if err != nil && sctx.Err() == nil {
				procLogger.Warn("admin http server exited", logpkg.Err(err))
			}
		case <-retentionTicker.C:
			sweepRetention(sctx, st, opts.Config, procLogger)
		}
	}
}

// sweepRetention trims the shared store down to the configured age and row
// caps. Best-effort: a failed sweep is logged and retried on the next tick.
func sweepRetention(ctx context.Context, st *pebblestore.Store, cfg config.Config, logger logpkg.Logger) {
	if cfg.RetentionAgeMs > 0 {
		cutoff := time.Now().Add(-time.Duration(cfg.RetentionAgeMs) * time.Millisecond).UnixMilli()
		if n, err := st.TrimOlderThan(ctx, cutoff, 0); err != nil {
			logger.Warn("retention trim by age failed", logpkg.Err(err))
		} else if n > 0 {
			logger.Debug("trimmed aged rows", logpkg.Int("count", n))
		}
	}
	if cfg.MaxRetainedRows > 0 {
		if n, err := st.TrimToMaxRows(ctx, cfg.MaxRetainedRows, 0); err != nil {
			logger.Warn("retention trim by row cap failed", logpkg.Err(err))
		} else if n > 0 {
			logger.Debug("trimmed rows over cap", logpkg.Int("count", n))
		}
	}
}
