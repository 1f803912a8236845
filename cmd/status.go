package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/waypoint-labs/roadwatch/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog counts and recent import runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		cat, db, err := initCatalog(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		snap, err := monitoring.NewCollector(cat, db).Collect(ctx)
		if err != nil {
			return err
		}
		return formatStatus(os.Stdout, snap)
	},
}

func formatStatus(out io.Writer, snap *monitoring.MetricsSnapshot) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENTITY\tCOUNT")
	fmt.Fprintln(w, "------\t-----")
	fmt.Fprintf(w, "cameras\t%d\n", snap.Cameras)
	fmt.Fprintf(w, "cameras verified\t%d\n", snap.CamerasVerified)
	fmt.Fprintf(w, "speed limits\t%d\n", snap.SpeedLimits)
	fmt.Fprintf(w, "hazards\t%d\n", snap.Hazards)
	fmt.Fprintf(w, "hazards active\t%d\n", snap.HazardsActive)
	fmt.Fprintf(w, "hazardous segments\t%d\n", snap.HazardousSegments)
	fmt.Fprintf(w, "school zones\t%d\n", snap.SchoolZones)
	fmt.Fprintf(w, "hospital zones\t%d\n", snap.HospitalZones)
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\naverage camera confidence: %.2f\n", snap.CameraAvgConfidence)
	if len(snap.RecentImports) > 0 {
		fmt.Fprintln(out)
		return formatImportRuns(out, snap.RecentImports)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
