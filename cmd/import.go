package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/waypoint-labs/roadwatch/internal/fetcher"
	"github.com/waypoint-labs/roadwatch/internal/importer"
	"github.com/waypoint-labs/roadwatch/internal/model"
	"github.com/waypoint-labs/roadwatch/internal/resilience"
)

var (
	importInput       string
	importZoneKind    string
	importStatusLimit int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load safety datasets into the catalog",
}

var importCamerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "Import speed cameras from a registry export (CSV, XLSX or JSON)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runImport(cmd.Context(), func(f fetcher.Fetcher) importer.Source {
			return importer.NewCameraSource(importInput, f)
		})
	},
}

var importSpeedLimitsCmd = &cobra.Command{
	Use:   "speed-limits",
	Short: "Import speed limit ways from an OSM extract",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runImport(cmd.Context(), func(f fetcher.Fetcher) importer.Source {
			return importer.NewSpeedLimitSource(importInput, f)
		})
	},
}

var importZonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Import school or hospital zones from a facility register",
	RunE: func(cmd *cobra.Command, _ []string) error {
		kind := model.ZoneKind(importZoneKind)
		if !kind.Valid() {
			return eris.Errorf("unknown zone kind %q (school or hospital)", importZoneKind)
		}
		return runImport(cmd.Context(), func(f fetcher.Fetcher) importer.Source {
			return importer.NewZoneSource(kind, importInput, f)
		})
	},
}

var importHazardRoadsCmd = &cobra.Command{
	Use:   "hazard-roads",
	Short: "Import hazardous road segments from a shapefile or OSM export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runImport(cmd.Context(), func(f fetcher.Fetcher) importer.Source {
			return importer.NewSegmentSource(importInput, f)
		})
	},
}

var importStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent import runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListImports(ctx, importStatusLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			zap.L().Info("no import runs recorded")
			return nil
		}
		return formatImportRuns(os.Stdout, runs)
	},
}

func runImport(ctx context.Context, build func(fetcher.Fetcher) importer.Source) error {
	cat, db, err := initCatalog(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Importer.UserAgent,
		MaxRetries: cfg.Importer.MaxAttempts,
	})
	retry := resilience.FromRetryConfig(
		cfg.Importer.MaxAttempts,
		cfg.Importer.InitialBackoffMs,
		cfg.Importer.MaxBackoffMs,
		0, -1,
	)

	run, err := importer.NewEngine(cat, db, retry).Run(ctx, build(f))
	if err != nil {
		return err
	}

	zap.L().Info("import complete",
		zap.String("source", run.Source),
		zap.Int("imported", run.Imported),
		zap.Int("merged", run.Merged),
		zap.Int("skipped", run.Skipped),
		zap.Int("failed", run.Failed),
		zap.Duration("duration", run.Duration),
	)
	return nil
}

func formatImportRuns(out io.Writer, runs []*model.ImportRun) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tIMPORTED\tMERGED\tSKIPPED\tFAILED\tSTARTED\tDURATION")
	fmt.Fprintln(w, "------\t--------\t------\t-------\t------\t-------\t--------")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			run.Source,
			run.Imported,
			run.Merged,
			run.Skipped,
			run.Failed,
			run.StartedAt.Format(time.RFC3339),
			run.Duration.Round(time.Millisecond),
		)
	}
	return w.Flush()
}

func init() {
	for _, c := range []*cobra.Command{importCamerasCmd, importSpeedLimitsCmd, importZonesCmd, importHazardRoadsCmd} {
		c.Flags().StringVar(&importInput, "input", "", "dataset location: file path or URL (required)")
		_ = c.MarkFlagRequired("input")
	}
	importZonesCmd.Flags().StringVar(&importZoneKind, "kind", "school", "zone kind: school or hospital")
	importStatusCmd.Flags().IntVar(&importStatusLimit, "limit", 10, "number of runs to show")

	importCmd.AddCommand(importCamerasCmd, importSpeedLimitsCmd, importZonesCmd, importHazardRoadsCmd, importStatusCmd)
	rootCmd.AddCommand(importCmd)
}
