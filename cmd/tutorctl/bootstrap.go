package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-tutor/internal/graph"
	"github.com/danielpatrickdp/adaptive-tutor/internal/state"
)

// newBootstrapCmd loads a graph document, validates it and stores it in the
// SQLite graph tables.
func newBootstrapCmd(a *app) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "bootstrap-graph [graph.yaml]",
		Short: "Validate a concept graph and store it in SQLite",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Graph
			if len(args) == 1 {
				path = args[0]
			}
			if dbPath == "" {
				dbPath = a.cfg.LogDB
			}
			if dbPath == "" {
				dbPath = a.cfg.DB
			}

			g, domains, err := graph.LoadFile(path)
			if err != nil {
				return err
			}
			if err := g.Validate(); err != nil {
				return fmt.Errorf("graph %s: %w", path, err)
			}

			// The state store owns the connection settings and migrations
			st, err := state.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			gs, err := graph.NewSQLiteStore(st.DB())
			if err != nil {
				return err
			}
			added, err := gs.Save(g)
			if err != nil {
				return err
			}

			a.log.Info("graph stored", "path", path, "db", dbPath, "concepts", g.Len(), "added", added)
			fmt.Fprintf(out(cmd), "=== Graph Bootstrap ===\n")
			fmt.Fprintf(out(cmd), "  Source: %s | DB: %s\n", path, dbPath)
			fmt.Fprintf(out(cmd), "  Domains: %d | Concepts: %d | Newly stored: %d\n", len(domains), g.Len(), added)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file to write (defaults to log_db, then db)")
	return cmd
}
