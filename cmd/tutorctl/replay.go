package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-tutor/internal/replay"
	"github.com/danielpatrickdp/adaptive-tutor/internal/state"
)

// newReplayCmd replays a fixture through the full pipeline and compares each
// event's action with the expected one. A mismatch fails the command.
func newReplayCmd(a *app) *cobra.Command {
	var commit bool
	cmd := &cobra.Command{
		Use:   "replay <fixture.json>",
		Short: "Replay a fixture of outcome events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := replay.LoadFixture(args[0])
			if err != nil {
				return err
			}
			runs, err := replay.RunAll(cmd.Context(), f, a.log)
			if err != nil {
				return err
			}

			if commit {
				if err := a.commitRuns(cmd.Context(), runs); err != nil {
					return err
				}
			}

			mismatches := 0
			for i, run := range runs {
				mismatches += countMismatches(f.Learners[i], run)
			}
			if a.jsonOut {
				if err := printJSON(out(cmd), runs); err != nil {
					return err
				}
			} else {
				printRuns(out(cmd), f, runs)
			}
			if mismatches > 0 {
				return fmt.Errorf("%d events differ from the expected results", mismatches)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&commit, "commit", false, "commit each learner's final policy to the store")
	return cmd
}

// commitRuns stores each learner's replayed blobs as a new version.
func (a *app) commitRuns(ctx context.Context, runs []replay.LearnerRun) error {
	b, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()
	mgr := state.NewManager(b.store)
	for _, run := range runs {
		rec, err := mgr.WithLearner(ctx, run.LearnerID, func(context.Context, state.Record) (*state.Record, error) {
			return &state.Record{PolicyBlob: run.PolicyBlob, ReviewBlob: run.ReviewBlob, MetricsJSON: `{"source":"replay"}`}, nil
		})
		if err != nil {
			return err
		}
		a.log.Info("replay committed", "learner_id", run.LearnerID, "version_id", rec.VersionID)
	}
	return nil
}

func countMismatches(fl replay.FixtureLearner, run replay.LearnerRun) int {
	n := 0
	for i, want := range fl.ExpectedResults {
		if i >= len(run.Results) {
			n += len(fl.ExpectedResults) - i
			break
		}
		got := run.Results[i]
		if got.Action != want.Action ||
			(want.ConceptID != "" && got.ConceptID != want.ConceptID) ||
			(want.Outcome != "" && string(got.Outcome) != want.Outcome) {
			n++
		}
	}
	return n
}

func printRuns(w io.Writer, f *replay.Fixture, runs []replay.LearnerRun) {
	if f.Description != "" {
		fmt.Fprintf(w, "%s\n\n", f.Description)
	}
	for i, run := range runs {
		fl := f.Learners[i]
		fmt.Fprintf(w, "== %s ==\n", run.LearnerID)
		fmt.Fprintf(w, "%-4s  %-12s  %-18s  %4s  %-13s  %-9s  %8s  %s\n", "#", "Concept", "Strategy", "Diff", "Action", "Outcome", "Reward", "Check")
		for j, r := range run.Results {
			check := ""
			if j < len(fl.ExpectedResults) {
				check = "ok"
				if countMismatches(replay.FixtureLearner{ExpectedResults: fl.ExpectedResults[j : j+1]}, replay.LearnerRun{Results: run.Results[j : j+1]}) > 0 {
					check = "MISMATCH want " + fl.ExpectedResults[j].Action
				}
			}
			fmt.Fprintf(w, "%-4d  %-12s  %-18s  %4d  %-13s  %-9s  %8.2f  %s\n", j+1, r.ConceptID, r.Strategy, r.Difficulty, r.Action, r.Outcome, r.Reward, check)
		}
		s := run.Summary
		fmt.Fprintf(w, "events=%d commits=%d gate_rejects=%d eval_rollbacks=%d skipped=%d mean_reward=%.3f mastered=%d reviews=%d\n\n",
			s.TotalEvents, s.Commits, s.GateRejects, s.EvalRollbacks, s.Skipped, s.MeanReward, s.Mastered, s.ReviewItems)
	}
}
