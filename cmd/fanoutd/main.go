// Command fanoutd runs the fanout daemon: a shared Pebble-backed event store
// plus one adapter.Adapter per configured namespace, exposing the read-only
// admin HTTP surface over them.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gynzy/socket.io-mongo-adapter/internal/cmd/fanoutserver"
	"github.com/gynzy/socket.io-mongo-adapter/internal/config"
	"github.com/gynzy/socket.io-mongo-adapter/internal/store/pebblestore"
	logpkg "github.com/gynzy/socket.io-mongo-adapter/pkg/log"
)

func main() {
	level := os.Getenv("FANOUT_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "fanoutd",
		Short: "Distributed event-broadcast adapter daemon",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the fanout daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			adminAddr, _ := cmd.Flags().GetString("admin")
			namespacesCSV, _ := cmd.Flags().GetString("namespaces")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			filterExpr, _ := cmd.Flags().GetString("filter")
			retentionAgeMs, _ := cmd.Flags().GetInt64("retention-age-ms")
			maxRetainedRows, _ := cmd.Flags().GetInt("max-retained-rows")
			sessionPersistence, _ := cmd.Flags().GetString("session-persistence")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			var namespaces []string
			for _, nsp := range strings.Split(namespacesCSV, ",") {
				if nsp = strings.TrimSpace(nsp); nsp != "" {
					namespaces = append(namespaces, nsp)
				}
			}

			if logLevel != "" {
				_ = os.Setenv("FANOUT_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("FANOUT_LOG_FORMAT", logFormat)
			}

			cfg := config.Default()
			if retentionAgeMs > 0 {
				cfg.RetentionAgeMs = retentionAgeMs
			}
			if maxRetainedRows > 0 {
				cfg.MaxRetainedRows = maxRetainedRows
			}
			if sessionPersistence == "store" {
				cfg.SessionPersistence = config.SessionPersistenceStore
			}
			config.FromEnv(&cfg)

			return fanoutserver.Run(context.Background(), fanoutserver.Options{
				DataDir:       dataDir,
				AdminAddr:     adminAddr,
				Namespaces:    namespaces,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
				FilterExpr:    filterExpr,
			})
		},
	}
	startCmd.Flags().String("data-dir", "", "Data directory for the shared event store (default: OS-specific application data directory)")
	startCmd.Flags().String("admin", ":8090", "Admin HTTP listen address")
	startCmd.Flags().String("namespaces", "/", "Comma-separated list of namespaces to serve")
	startCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	startCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms")
	startCmd.Flags().String("log-level", os.Getenv("FANOUT_LOG_LEVEL"), "Log level: debug|info|warn|error")
	startCmd.Flags().String("log-format", os.Getenv("FANOUT_LOG_FORMAT"), "Log format: text|json")
	startCmd.Flags().String("filter", "", "CEL expression restricting the admin tail stream")
	startCmd.Flags().Int64("retention-age-ms", 0, "Override default retention age in ms (0 keeps the default)")
	startCmd.Flags().Int("max-retained-rows", 0, "Override default max retained rows (0 keeps the default)")
	startCmd.Flags().String("session-persistence", "memory", "Session persistence mode: memory|store")
	rootCmd.AddCommand(startCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
