package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/adaptive-tutor/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-tutor/internal/rpc"
	"github.com/danielpatrickdp/adaptive-tutor/internal/state"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the PolicyService over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.GRPCAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	b, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	g, err := a.loadGraph(b)
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("graph: %w", err)
	}

	core := orchestrator.NewCore(g, a.cfg.Orchestrator(), a.log)
	srv := rpc.NewServer(core, state.NewManager(b.store), rpc.Options{
		Decisions: b.logDB,
		Memory:    b.memory,
		Rng:       seededRng(a.cfg.Seed),
		Log:       a.log,
	})

	lis, err := net.Listen("tcp", a.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.GRPCAddr, err)
	}
	gs := grpc.NewServer()
	rpc.Register(gs, srv)

	go func() {
		<-ctx.Done()
		a.log.Info("shutting down")
		gs.GracefulStop()
	}()

	a.log.Info("policy service ready",
		"addr", lis.Addr().String(),
		"db_driver", a.cfg.DBDriver,
		"concepts", g.Len(),
		"seed", a.cfg.Seed,
	)
	return gs.Serve(lis)
}

// seededRng gives request n the stream PCG(seed, n). Seed 0 leaves the
// server's default random source in place.
func seededRng(seed uint64) func() *rand.Rand {
	if seed == 0 {
		return nil
	}
	var n atomic.Uint64
	return func() *rand.Rand { return rand.New(rand.NewPCG(seed, n.Add(1))) }
}
