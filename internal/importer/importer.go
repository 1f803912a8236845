// Package importer loads external road-safety datasets into the catalog:
// camera registries, OSM speed limits and zones, road-hazard inventories.
// Each dataset is a Source that materializes Records; the Engine pushes
// them through the catalog's create-or-merge path one at a time, retrying
// transient store failures and counting skips without ever aborting a
// batch on a single bad record.
package importer

import (
	"context"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
)

// Outcome classifies what applying one record did to the catalog.
type Outcome int

const (
	// OutcomeCreated means a new entity was inserted.
	OutcomeCreated Outcome = iota
	// OutcomeMerged means the record confirmed an existing entity.
	OutcomeMerged
	// OutcomeSkipped means the record was well formed but not applicable.
	OutcomeSkipped
)

// Record is one entity candidate parsed from a dataset.
type Record interface {
	// Key identifies the record in logs: a source id or row position.
	Key() string
	// Apply routes the record into the catalog.
	Apply(ctx context.Context, cat *catalog.Catalog) (Outcome, error)
}

// Source is one importable dataset.
type Source interface {
	Name() string
	// BatchSize is the progress-checkpoint cadence for this dataset.
	BatchSize() int
	// Fetch downloads and parses the dataset into records.
	Fetch(ctx context.Context) ([]Record, error)
}
