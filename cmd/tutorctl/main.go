// Command tutorctl serves the adaptive tutoring PolicyService and inspects,
// bootstraps and replays its state.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-tutor/internal/config"
	"github.com/danielpatrickdp/adaptive-tutor/internal/graph"
	"github.com/danielpatrickdp/adaptive-tutor/internal/logging"
	"github.com/danielpatrickdp/adaptive-tutor/internal/pkg/logger"
	"github.com/danielpatrickdp/adaptive-tutor/internal/state"

	_ "modernc.org/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// #region root

// app holds the global flags and the lazily loaded config.
type app struct {
	configPath string
	logMode    string
	jsonOut    bool

	cfg config.Config
	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "tutorctl",
		Short:         "Adaptive tutoring policy service and tools",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.logMode, "log-mode", "", "prod or dev (overrides config)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "output as JSON instead of a table")

	root.AddCommand(
		newServeCmd(a),
		newBootstrapCmd(a),
		newPathCmd(a),
		newInspectCmd(a),
		newReplayCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logMode != "" {
		cfg.LogMode = a.logMode
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.cfg, a.log = cfg, log
	return nil
}

// #endregion root

// #region wiring

// backend is the opened persistence layer. logDB may be nil.
type backend struct {
	store   state.Store
	logDB   *sql.DB
	memory  *logging.StrategyMemory
	closers []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// openBackend opens the configured store, wraps it in the redis cache when
// configured, and opens the log tables.
func (a *app) openBackend(ctx context.Context) (*backend, error) {
	b := &backend{}
	switch a.cfg.DBDriver {
	case config.DriverPostgres:
		pg, err := state.NewPostgresStore(ctx, a.cfg.DB)
		if err != nil {
			return nil, err
		}
		b.store = pg
		b.closers = append(b.closers, pg.Close)
	default:
		lite, err := state.NewSQLiteStore(a.cfg.DB)
		if err != nil {
			return nil, err
		}
		b.store = lite
		b.closers = append(b.closers, lite.Close)
		if a.cfg.LogDB == "" {
			b.logDB = lite.DB()
		}
	}

	if a.cfg.LogDB != "" {
		lite, err := state.NewSQLiteStore(a.cfg.LogDB)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("log db: %w", err)
		}
		b.logDB = lite.DB()
		b.closers = append(b.closers, lite.Close)
	}
	if b.logDB != nil {
		mem, err := logging.NewStrategyMemory(b.logDB)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.memory = mem
	}

	if a.cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: a.cfg.RedisAddr})
		b.closers = append(b.closers, rdb.Close)
		b.store = state.NewCachedStore(b.store, rdb, a.cfg.RedisTTL, a.log)
		a.log.Info("blob cache enabled", "redis_addr", a.cfg.RedisAddr, "ttl", a.cfg.RedisTTL)
	}
	return b, nil
}

// loadGraph reads the graph file, falling back to the graph tables of the
// log database when the file is missing.
func (a *app) loadGraph(b *backend) (*graph.Graph, error) {
	g, _, err := graph.LoadFile(a.cfg.Graph)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, os.ErrNotExist) || b == nil || b.logDB == nil {
		return nil, err
	}
	gs, gerr := graph.NewSQLiteStore(b.logDB)
	if gerr != nil {
		return nil, gerr
	}
	g, gerr = gs.Load()
	if gerr != nil {
		return nil, gerr
	}
	if g.Len() == 0 {
		return nil, fmt.Errorf("no graph at %s and none stored: %w", a.cfg.Graph, err)
	}
	a.log.Info("graph loaded from database", "concepts", g.Len())
	return g, nil
}

// #endregion wiring

func (a *app) now() time.Time { return time.Now().UTC() }

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
