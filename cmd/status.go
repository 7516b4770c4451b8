package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/collectscope/identify-cli/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aggregate cycle metrics and source health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "identify")
		if err != nil {
			return err
		}
		defer env.Close()

		lookback, _ := cmd.Flags().GetInt("lookback")
		snap, err := env.Collector.Collect(ctx, lookback)
		if err != nil {
			return eris.Wrap(err, "collect metrics")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		formatSnapshot(os.Stdout, snap)

		if alerts := env.Alerter.Evaluate(snap); len(alerts) > 0 {
			fmt.Fprintln(os.Stdout)
			for _, a := range alerts {
				fmt.Fprintf(os.Stdout, "ALERT [%s] %s\n", a.Severity, a.Message)
			}
		}
		return nil
	},
}

func formatSnapshot(w io.Writer, snap *monitoring.MetricsSnapshot) {
	fmt.Fprintf(w, "Cycles (last %dh):   %d total, %d resolved, %d no-consensus (%.1f%%)\n",
		snap.LookbackHours, snap.CyclesTotal, snap.CyclesResolved,
		snap.CyclesNoConsensus, snap.NoConsensusRate*100)
	fmt.Fprintf(w, "Avg confidence:     %.3f\n", snap.AvgConfidence)
	fmt.Fprintf(w, "Avg cycle duration: %.0fms\n", snap.AvgDurationMs)
	fmt.Fprintf(w, "Avg sources hit:    %.1f\n", snap.AvgSourcesHit)

	if len(snap.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, s := range snap.Sources {
			state := "active"
			if !s.Active {
				state = "inactive"
			}
			fmt.Fprintf(w, "  %-20s tier %d  reliability %.3f  latency %.0fms  %s\n",
				s.SourceID, s.Tier, s.Reliability, s.AvgLatencyMs, state)
		}
	}
}

func newChecker(env *engineEnv) *monitoring.Checker {
	return monitoring.NewChecker(env.Collector, env.Alerter, cfg.Monitoring)
}

func init() {
	statusCmd.Flags().Int("lookback", 24, "metrics window in hours")
	statusCmd.Flags().Bool("json", false, "emit the raw snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}
