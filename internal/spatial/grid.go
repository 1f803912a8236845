package spatial

import (
	"math"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
)

// DefaultCellDegrees is the grid cell edge used when no size is given.
// 0.05 degrees is roughly 5.5 km of latitude, which keeps candidate cell
// counts small for both the 300 m zone queries and the 100 km camera ceiling.
const DefaultCellDegrees = 0.05

// cellKey addresses one grid cell. Row indexes latitude, col longitude.
type cellKey struct {
	row int32
	col int32
}

// cellRange is the inclusive rectangle of cells covering a bounding box.
type cellRange struct {
	minRow, maxRow int32
	minCol, maxCol int32
}

func rangeFor(b geodesy.BBox, cellDeg float64) cellRange {
	return cellRange{
		minRow: int32(math.Floor(b.MinLat / cellDeg)),
		maxRow: int32(math.Floor(b.MaxLat / cellDeg)),
		minCol: int32(math.Floor(b.MinLon / cellDeg)),
		maxCol: int32(math.Floor(b.MaxLon / cellDeg)),
	}
}

func (r cellRange) each(fn func(cellKey)) {
	for row := r.minRow; row <= r.maxRow; row++ {
		for col := r.minCol; col <= r.maxCol; col++ {
			fn(cellKey{row: row, col: col})
		}
	}
}
