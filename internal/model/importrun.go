package model

import "time"

// ImportRun records the outcome of one bulk import execution.
type ImportRun struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"` // dataset name, e.g. osm-speed-limits
	Imported  int           `json:"imported"`
	Merged    int           `json:"merged"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}
