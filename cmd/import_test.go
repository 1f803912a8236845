package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-labs/roadwatch/internal/config"
	"github.com/waypoint-labs/roadwatch/internal/fetcher"
	"github.com/waypoint-labs/roadwatch/internal/importer"
	"github.com/waypoint-labs/roadwatch/internal/model"
)

func TestRunImport_CamerasFromLocalCSV(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "cameras.csv")
	require.NoError(t, os.WriteFile(input, []byte(
		"ID,Latitude,Longitude,Speed_Limit,Camera_Type,Direction,Street,City\n"+
			"c1,13.0827,80.2707,50,A,45,Mount Road,Chennai\n"+
			"c2,13.2000,80.4000,60,M,,,\n"), 0o600))

	cfg = &config.Config{
		Store:    config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "import.db")},
		Importer: config.ImporterConfig{MaxAttempts: 2, UserAgent: "roadwatch-test/1.0"},
	}

	err := runImport(context.Background(), func(f fetcher.Fetcher) importer.Source {
		return importer.NewCameraSource(input, f)
	})
	require.NoError(t, err)

	// The run is persisted alongside the imported rows.
	cat, st, err := initCatalog(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	assert.Equal(t, 2, cat.Cameras.Count())

	runs, err := st.ListImports(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "cameras", runs[0].Source)
	assert.Equal(t, 2, runs[0].Imported)
}

func TestFormatImportRuns(t *testing.T) {
	runs := []*model.ImportRun{
		{
			ID:        "run-1",
			Source:    "cameras",
			Imported:  12,
			Merged:    3,
			Skipped:   1,
			Failed:    0,
			StartedAt: time.Date(2025, 11, 3, 10, 30, 0, 0, time.UTC),
			Duration:  2500 * time.Millisecond,
		},
		{
			ID:        "run-2",
			Source:    "school-zones",
			Imported:  40,
			StartedAt: time.Date(2025, 11, 2, 9, 0, 0, 0, time.UTC),
			Duration:  800 * time.Millisecond,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, formatImportRuns(&buf, runs))

	out := buf.String()
	assert.Contains(t, out, "SOURCE")
	assert.Contains(t, out, "cameras")
	assert.Contains(t, out, "school-zones")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "2025-11-03T10:30:00Z")
	assert.Contains(t, out, "2.5s")
}
