package catalog

import "math"

// Source classifies who produced a candidate entity. It selects the initial
// confidence preset and how a dedup merge adjusts an existing entity.
type Source string

const (
	// SourceUser is a driver submission through the API.
	SourceUser Source = "user"
	// SourceImport is an official registry dataset.
	SourceImport Source = "import"
	// SourceOSM is OpenStreetMap extract data.
	SourceOSM Source = "osm"
	// SourceDetect is the photo hazard detector.
	SourceDetect Source = "detect"
)

// authoritative sources create verified entities and may flip an existing
// entity to verified on merge.
func authoritative(src Source) bool {
	return src == SourceImport || src == SourceOSM
}

// sourcePreset returns the initial verification fields for a new entity.
// Every creation counts itself as the first sighting.
func sourcePreset(src Source, pol ConfidencePolicy) (confidence float64, verified bool, count int) {
	switch src {
	case SourceImport:
		return pol.ImportPreset, true, 1
	case SourceOSM:
		return pol.OSMPreset, true, 1
	default:
		return pol.UserPreset, false, 1
	}
}

// confirmedConfidence returns the confidence after one more independent
// sighting. Authoritative sources raise it to at least their preset; user
// and detector sightings nudge it upward under the cap.
func confirmedConfidence(current float64, src Source, pol ConfidencePolicy) float64 {
	switch src {
	case SourceImport:
		return math.Min(math.Max(current, pol.ImportPreset), 1)
	case SourceOSM:
		return math.Min(math.Max(current, pol.OSMPreset), 1)
	default:
		return math.Min(current+pol.ConfirmDelta, pol.ConfirmCap)
	}
}

// contradictedConfidence lowers confidence after a contradiction report,
// floored at zero. Entities are never auto-deleted however low they score.
func contradictedConfidence(current float64, pol ConfidencePolicy) float64 {
	return math.Max(current-pol.ContradictDelta, 0)
}
