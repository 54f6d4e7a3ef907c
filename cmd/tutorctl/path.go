package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-tutor/internal/graph"
	"github.com/danielpatrickdp/adaptive-tutor/internal/orchestrator"
)

func newPathCmd(a *app) *cobra.Command {
	var (
		targets    []string
		mastered   []string
		velocities map[string]string
	)
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Compute a learning path toward target concepts",
		Example: `  tutorctl path --target recursion
  tutorctl path --target recursion --mastered variables,loops --velocity python=1.5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := a.loadGraph(nil)
			if err != nil {
				return err
			}
			vel := make(map[string]float64, len(velocities))
			for domain, s := range velocities {
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return fmt.Errorf("velocity %s: %w", domain, err)
				}
				vel[domain] = v
			}
			done := make(map[string]struct{}, len(mastered))
			for _, id := range mastered {
				done[id] = struct{}{}
			}
			if len(targets) == 0 {
				targets = g.IDs()
			}

			core := orchestrator.NewCore(g, a.cfg.Orchestrator(), a.log)
			steps, err := core.ComputeLearningPath(targets, done, vel)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(out(cmd), steps)
			}
			printPath(out(cmd), steps)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&targets, "target", nil, "target concept ids (default: whole graph)")
	cmd.Flags().StringSliceVar(&mastered, "mastered", nil, "already mastered concept ids")
	cmd.Flags().StringToStringVar(&velocities, "velocity", nil, "domain=multiplier learning velocities")
	return cmd
}

func printPath(w io.Writer, steps []graph.Step) {
	if len(steps) == 0 {
		fmt.Fprintln(w, "nothing left to learn")
		return
	}
	fmt.Fprintf(w, "%-4s  %-24s  %8s  %8s\n", "#", "Concept", "Hours", "Total")
	fmt.Fprintf(w, "%-4s+-%-24s+-%8s+-%8s\n", "----", "------------------------", "--------", "--------")
	var total float64
	for i, st := range steps {
		total += st.EstimatedHours
		fmt.Fprintf(w, "%-4d  %-24s  %8.1f  %8.1f\n", i+1, st.ConceptID, st.EstimatedHours, total)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
