package validators

import (
	"sort"

	"github.com/golang/geo/s2"

	"github.com/communisaas/boundary-atlas/pkg/geometry"
)

// BoundsIndex holds coarse lat/lng bounding boxes for known jurisdictions.
// Boxes are deliberately generous: they exist to catch wrong-state or
// wrong-city data, not to adjudicate exact borders.
type BoundsIndex struct {
	boxes map[string]s2.Rect
	order []string // deterministic Locate order
}

// NewBoundsIndex builds an index from jurisdiction id -> [minLat, minLon,
// maxLat, maxLon] boxes.
func NewBoundsIndex(boxes map[string][4]float64) *BoundsIndex {
	idx := &BoundsIndex{boxes: make(map[string]s2.Rect, len(boxes))}
	for id, b := range boxes {
		rect := s2.RectFromLatLng(s2.LatLngFromDegrees(b[0], b[1]))
		rect = rect.AddPoint(s2.LatLngFromDegrees(b[2], b[3]))
		idx.boxes[id] = rect
		idx.order = append(idx.order, id)
	}
	sort.Strings(idx.order)
	return idx
}

// Lookup returns the box for a jurisdiction id.
func (idx *BoundsIndex) Lookup(id string) (s2.Rect, bool) {
	r, ok := idx.boxes[id]
	return r, ok
}

// Locate returns the first known jurisdiction whose box contains the point,
// scanning ids in sorted order for determinism. City boxes nest inside state
// boxes, so callers must check the expected jurisdiction before calling this.
func (idx *BoundsIndex) Locate(c geometry.Coordinate) (string, bool) {
	ll := s2.LatLngFromDegrees(c.Lat, c.Lon)
	for _, id := range idx.order {
		if idx.boxes[id].ContainsLatLng(ll) {
			return id, true
		}
	}
	return "", false
}

// BoundsValidator confirms a collection's centroid and extent lie within the
// claimed jurisdiction.
type BoundsValidator struct {
	index *BoundsIndex
}

// NewBoundsValidator creates a bounds validator over the given index.
func NewBoundsValidator(index *BoundsIndex) *BoundsValidator {
	return &BoundsValidator{index: index}
}

// Validate applies the centroid and spillover checks:
//
//	centroid in a different known jurisdiction -> reject, confidence 0
//	centroid in no known jurisdiction          -> soft pass, confidence 50
//	centroid matches, >50% coords out of box   -> reject (wrong-jurisdiction data)
//	centroid matches, some coords out of box   -> accept ~80 (border spillover)
//	centroid matches, all coords in box        -> confidence 100
func (v *BoundsValidator) Validate(fc *geometry.FeatureCollection, jurisdictionID string) Result {
	centroid, ok := geometry.Centroid(fc)
	if !ok {
		return reject(0, "collection has no coordinates; cannot verify geographic bounds")
	}

	expected, known := v.index.Lookup(jurisdictionID)
	ll := s2.LatLngFromDegrees(centroid.Lat, centroid.Lon)

	if !known || !expected.ContainsLatLng(ll) {
		if other, found := v.index.Locate(centroid); found && other != jurisdictionID {
			return reject(0, "centroid (%.4f, %.4f) falls within %q, not the claimed jurisdiction %q",
				centroid.Lat, centroid.Lon, other, jurisdictionID)
		}
		// No known box claims the centroid: cannot verify. Manual review
		// recommended rather than an automatic failure.
		r := Result{Valid: true, Confidence: 50}
		return warn(r, "centroid (%.4f, %.4f) is in no known jurisdiction bounding box; manual review recommended",
			centroid.Lat, centroid.Lon)
	}

	coords := geometry.AllCoordinates(fc)
	outside := 0
	for _, c := range coords {
		if !expected.ContainsLatLng(s2.LatLngFromDegrees(c.Lat, c.Lon)) {
			outside++
		}
	}

	switch {
	case outside == 0:
		return accept(100)
	case outside*2 > len(coords):
		return reject(10, "%d of %d coordinates (%.0f%%) fall outside %q: dataset belongs to a different jurisdiction",
			outside, len(coords), 100*float64(outside)/float64(len(coords)), jurisdictionID)
	default:
		r := accept(80)
		return warn(r, "%d of %d coordinates fall outside %q; tolerated as border spillover",
			outside, len(coords), jurisdictionID)
	}
}
