package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/collectscope/identify-cli/internal/db"
	"github.com/collectscope/identify-cli/internal/model"
	"github.com/collectscope/identify-cli/internal/store"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the source catalog",
	Long:  "Commands for listing, deactivating, resetting and importing identification sources.",
}

// -- sources list --

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		onlyActive, _ := cmd.Flags().GetBool("active")
		sources, err := st.ListSources(ctx, onlyActive)
		if err != nil {
			return eris.Wrap(err, "sources list")
		}

		if len(sources) == 0 {
			fmt.Fprintln(os.Stderr, "No sources found.")
			return nil
		}

		formatSourcesList(os.Stdout, sources)
		return nil
	},
}

func formatSourcesList(w io.Writer, sources []model.Source) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTIER\tRELIABILITY\tAVG LATENCY\tACTIVE\tCATEGORIES")
	for _, s := range sources {
		cats, _ := json.Marshal(s.Categories)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.3f\t%.0fms\t%t\t%s\n",
			s.ID, s.Name, s.Tier, s.Reliability, s.AvgLatencyMs, s.Active, cats)
	}
	tw.Flush() //nolint:errcheck
}

// -- sources deactivate --

var sourcesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <source-id>",
	Short: "Exclude a source from future selection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if err := st.DeactivateSource(ctx, args[0]); err != nil {
			return eris.Wrap(err, "sources deactivate")
		}
		zap.L().Info("source deactivated", zap.String("source", args[0]))
		return nil
	},
}

// -- sources reset --

var sourcesResetCmd = &cobra.Command{
	Use:   "reset <source-id>",
	Short: "Reset a source's trust statistics to the neutral baseline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		base, _ := cmd.Flags().GetFloat64("reliability")
		if err := st.UpdateSourceStats(ctx, args[0], base, 0); err != nil {
			return eris.Wrap(err, "sources reset")
		}
		zap.L().Info("source statistics reset",
			zap.String("source", args[0]),
			zap.Float64("reliability", base),
		)
		return nil
	},
}

// -- sources import --

var sourcesImportCmd = &cobra.Command{
	Use:   "import <catalog.json>",
	Short: "Import a source catalog file",
	Long:  "Reads a JSON array of sources and upserts them into the catalog. Running statistics of existing sources are preserved.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read catalog file")
		}
		sources, err := parseCatalog(data)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := importSources(ctx, st, sources)
		if err != nil {
			return err
		}
		zap.L().Info("source catalog imported",
			zap.String("file", args[0]),
			zap.Int64("sources", n),
		)
		return nil
	},
}

// parseCatalog decodes and validates a catalog file.
func parseCatalog(data []byte) ([]model.Source, error) {
	var sources []model.Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, eris.Wrap(err, "parse catalog")
	}
	for i, s := range sources {
		if s.ID == "" {
			return nil, eris.Errorf("catalog entry %d has no id", i)
		}
		if s.Tier < 1 {
			return nil, eris.Errorf("catalog entry %s has invalid tier %d", s.ID, s.Tier)
		}
		for _, c := range s.Categories {
			if _, ok := model.ParseCategory(string(c)); !ok {
				return nil, eris.Errorf("catalog entry %s has unknown category %q", s.ID, c)
			}
		}
	}
	return sources, nil
}

// importSources applies the catalog. Against Postgres the whole file goes
// through one bulk upsert; SQLite upserts row by row.
func importSources(ctx context.Context, st store.Store, sources []model.Source) (int64, error) {
	ps, ok := st.(*store.PostgresStore)
	if !ok {
		for _, s := range sources {
			if err := st.UpsertSource(ctx, s); err != nil {
				return 0, eris.Wrapf(err, "import source %s", s.ID)
			}
		}
		return int64(len(sources)), nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(sources))
	for _, s := range sources {
		cats, err := json.Marshal(s.Categories)
		if err != nil {
			return 0, eris.Wrapf(err, "marshal categories for %s", s.ID)
		}
		reliability := s.Reliability
		if reliability == 0 {
			reliability = 0.5
		}
		rows = append(rows, []any{s.ID, s.Name, cats, s.Tier, reliability, s.AvgLatencyMs, s.Active, now, now})
	}

	return db.BulkUpsert(ctx, ps.Pool(), db.UpsertConfig{
		Table:        "sources",
		Columns:      []string{"id", "name", "categories", "tier", "reliability", "avg_latency_ms", "active", "created_at", "updated_at"},
		ConflictKeys: []string{"id"},
		// Running statistics stay owned by the feedback loop.
		UpdateCols: []string{"name", "categories", "tier", "active", "updated_at"},
	}, rows)
}

func init() {
	sourcesListCmd.Flags().Bool("active", false, "only list active sources")
	sourcesResetCmd.Flags().Float64("reliability", 0.5, "baseline reliability to reset to")

	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesDeactivateCmd)
	sourcesCmd.AddCommand(sourcesResetCmd)
	sourcesCmd.AddCommand(sourcesImportCmd)
	rootCmd.AddCommand(sourcesCmd)
}
