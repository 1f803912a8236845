// Package detector classifies road damage in user-submitted photos.
//
// A Client takes raw image bytes and returns zero or more damage
// detections; an empty result means the backend saw no road damage.
// Two backends are provided: a Claude vision classifier and a generic
// JSON detection service.
package detector

import "context"

// Detection is a single damage classification from a vision backend.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Client analyses a road photo and reports any visible damage.
type Client interface {
	Detect(ctx context.Context, image []byte, mime string) ([]Detection, error)
}

// Primary returns the highest-confidence detection. The second return
// is false when there are no detections.
func Primary(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best, true
}
