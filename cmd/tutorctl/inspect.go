package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-tutor/internal/logging"
	"github.com/danielpatrickdp/adaptive-tutor/internal/policy"
	"github.com/danielpatrickdp/adaptive-tutor/internal/review"
	"github.com/danielpatrickdp/adaptive-tutor/internal/state"
)

const timeFormat = "2006-01-02T15:04:05Z"

// #region inspect

func newInspectCmd(a *app) *cobra.Command {
	var (
		learnerID string
		last      int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect a learner's policy versions, stats and decisions",
	}
	cmd.PersistentFlags().StringVar(&learnerID, "learner", "", "learner id")
	cmd.PersistentFlags().IntVar(&last, "last", 20, "show N most recent rows")
	_ = cmd.MarkPersistentFlagRequired("learner")

	versions := &cobra.Command{
		Use:   "versions",
		Short: "List policy versions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			recs, err := b.store.ListVersions(cmd.Context(), learnerID, last)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(out(cmd), versionRows(recs))
			}
			printVersions(out(cmd), recs)
			return nil
		},
	}

	var conceptID, versionID string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show the policy stats of the active (or a given) version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			var rec state.Record
			if versionID != "" {
				rec, err = b.store.GetVersion(cmd.Context(), versionID)
			} else {
				rec, err = b.store.Get(cmd.Context(), learnerID)
			}
			if err != nil {
				return err
			}
			pol, err := policy.Load(rec.PolicyBlob, 0)
			if err != nil {
				a.log.Warn("corrupt policy blob", "version_id", rec.VersionID, "error", err)
			}
			view := statsView{VersionID: rec.VersionID, ParentID: rec.ParentID, CreatedAt: rec.CreatedAt.Format(timeFormat), Stats: pol.Stats()}
			if q, err := review.Unmarshal(rec.ReviewBlob); err == nil {
				view.Reviews = q.Summary(a.now())
			}
			if conceptID != "" && b.memory != nil {
				view.Remembered, view.RememberedScore, err = b.memory.BestStrategy(learnerID, conceptID, a.now())
				if err != nil {
					return err
				}
			}
			if a.jsonOut {
				return printJSON(out(cmd), view)
			}
			printStats(out(cmd), view)
			return nil
		},
	}
	stats.Flags().StringVar(&conceptID, "concept", "", "also report the remembered best strategy for this concept")
	stats.Flags().StringVar(&versionID, "version", "", "inspect this version instead of the active one")

	decisions := &cobra.Command{
		Use:   "decisions",
		Short: "List logged outcome decisions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			if b.logDB == nil {
				return fmt.Errorf("decision log disabled: set log_db")
			}
			entries, err := logging.ListDecisions(b.logDB, learnerID, last)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return printJSON(out(cmd), entries)
			}
			printDecisions(out(cmd), entries)
			return nil
		},
	}

	var target string
	rollback := &cobra.Command{
		Use:   "rollback",
		Short: "Make an earlier version the learner's active policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			if err := b.store.Rollback(cmd.Context(), learnerID, target); err != nil {
				return err
			}
			a.log.Info("rolled back", "learner_id", learnerID, "version_id", target)
			fmt.Fprintf(out(cmd), "active version for %s is now %s\n", learnerID, target)
			return nil
		},
	}
	rollback.Flags().StringVar(&target, "to", "", "version id")
	_ = rollback.MarkFlagRequired("to")

	cmd.AddCommand(versions, stats, decisions, rollback)
	return cmd
}

// #endregion inspect

// #region output

type versionRow struct {
	VersionID string `json:"version_id"`
	ParentID  string `json:"parent_id,omitempty"`
	CreatedAt string `json:"created_at"`
	Metrics   string `json:"metrics,omitempty"`
}

func versionRows(recs []state.Record) []versionRow {
	rows := make([]versionRow, len(recs))
	for i, r := range recs {
		rows[i] = versionRow{VersionID: r.VersionID, ParentID: r.ParentID, CreatedAt: r.CreatedAt.Format(timeFormat), Metrics: r.MetricsJSON}
	}
	return rows
}

func printVersions(w io.Writer, recs []state.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no versions found")
		return
	}
	fmt.Fprintf(w, "%-12s  %-12s  %-20s  %s\n", "Version", "Parent", "Time", "Metrics")
	fmt.Fprintf(w, "%-12s+-%-12s+-%-20s+-%s\n", "------------", "------------", "--------------------", "-------")
	for _, r := range recs {
		parent := "—"
		if r.ParentID != "" {
			parent = shortID(r.ParentID)
		}
		fmt.Fprintf(w, "%-12s  %-12s  %-20s  %s\n", shortID(r.VersionID), parent, r.CreatedAt.Format(timeFormat), r.MetricsJSON)
	}
}

type statsView struct {
	VersionID       string         `json:"version_id"`
	ParentID        string         `json:"parent_id,omitempty"`
	CreatedAt       string         `json:"created_at"`
	Stats           policy.Stats   `json:"stats"`
	Reviews         review.Summary `json:"reviews"`
	Remembered      string         `json:"remembered_strategy,omitempty"`
	RememberedScore float64        `json:"remembered_score,omitempty"`
}

func printStats(w io.Writer, v statsView) {
	fmt.Fprintf(w, "Version:    %s\n", v.VersionID)
	fmt.Fprintf(w, "Parent:     %s\n", v.ParentID)
	fmt.Fprintf(w, "Created:    %s\n", v.CreatedAt)
	fmt.Fprintf(w, "\nStrategies (best: %s):\n", v.Stats.BestStrategy)
	for _, name := range policy.Strategies {
		arm, ok := v.Stats.Strategies[name]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %-20s  alpha=%6.2f  beta=%6.2f  mean=%.3f\n", name, arm.Alpha, arm.Beta, arm.Expected)
	}
	fmt.Fprintf(w, "\nDifficulty:  updates=%d epsilon=%.3f contexts=%d\n", v.Stats.Difficulty.Updates, v.Stats.Difficulty.Epsilon, v.Stats.Difficulty.ContextsSeen)
	fmt.Fprintf(w, "Actions:     updates=%d states=%d alpha=%.3f\n", v.Stats.Action.Updates, v.Stats.Action.StatesExplored, v.Stats.Action.Alpha)
	fmt.Fprintf(w, "Engagement:  updates=%d epsilon=%.3f\n", v.Stats.Engagement.Updates, v.Stats.Engagement.Epsilon)
	fmt.Fprintf(w, "Scheduler:   updates=%d epsilon=%.3f\n", v.Stats.Scheduler.Updates, v.Stats.Scheduler.Epsilon)
	fmt.Fprintf(w, "\nReviews:     total=%d due_now=%d\n", v.Reviews.Total, v.Reviews.DueNow)
	if v.Remembered != "" {
		fmt.Fprintf(w, "Remembered:  %s (%.3f)\n", v.Remembered, v.RememberedScore)
	}
}

func printDecisions(w io.Writer, entries []logging.DecisionEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no decisions found")
		return
	}
	fmt.Fprintf(w, "%-20s  %-16s  %-8s  %-9s  %8s  %s\n", "Time", "Concept", "Decision", "Outcome", "Reward", "Reason")
	fmt.Fprintf(w, "%-20s+-%-16s+-%-8s+-%-9s+-%8s+-%s\n", "--------------------", "----------------", "--------", "---------", "--------", "------")
	for _, e := range entries {
		fmt.Fprintf(w, "%-20s  %-16s  %-8s  %-9s  %8.2f  %s\n", e.CreatedAt.Format(timeFormat), e.ConceptID, e.Decision, e.Outcome, e.Reward, e.Reason)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
