package validators

import (
	"fmt"

	"github.com/twpayne/go-geos"

	"github.com/communisaas/boundary-atlas/pkg/geometry"
)

// DefaultCoverageTolerancePct is the commit-time gap/overlap tolerance as a
// percentage of parent area.
const DefaultCoverageTolerancePct = 0.001

// TopologyValidator detects degenerate polygons and quantifies inter-feature
// overlap. Pairwise checks are O(n²): acceptable at municipal scale (tens of
// features), not intended for national-scale layers — extending this to
// thousands of features requires a spatial index first.
type TopologyValidator struct {
	// TolerancePct bounds the commit-time gap/overlap percentage of parent
	// area before the strict check rejects.
	TolerancePct float64
}

// NewTopologyValidator creates a validator with the default tolerance.
func NewTopologyValidator() *TopologyValidator {
	return &TopologyValidator{TolerancePct: DefaultCoverageTolerancePct}
}

// Validate runs the per-feature degeneracy check and the pairwise
// overlap/adjacency scan. Shared-edge adjacency is expected between
// districts and is reported, not rejected; only intersections with real area
// count as overlaps.
func (v *TopologyValidator) Validate(fc *geometry.FeatureCollection) Result {
	if len(fc.Features) == 0 {
		return reject(0, "empty collection: no features to check")
	}

	geoms := make([]*geos.Geom, len(fc.Features))
	defer func() {
		for _, g := range geoms {
			if g != nil {
				g.Destroy()
			}
		}
	}()

	var r Result
	r.Valid = true
	r.Confidence = 100

	for i := range fc.Features {
		f := &fc.Features[i]
		if err := f.ValidateRings(); err != nil {
			return reject(5, "degenerate geometry: %v", err)
		}
		g, err := featureGeom(f)
		if err != nil {
			return reject(5, "feature %q: %v", f.ID, err)
		}
		if g.IsEmpty() {
			g.Destroy()
			return reject(5, "feature %q has an empty geometry", f.ID)
		}
		if !g.IsValid() {
			// Self-intersections and the like degrade confidence but are
			// repairable; record, then repair before the pairwise scan so
			// the overlay ops below never run on invalid input. GEOS throws
			// on intersecting an invalid geometry, and go-geos surfaces
			// that as a panic.
			r = warn(r, "feature %q has invalid geometry: %s", f.ID, g.IsValidReason())
			if r.Confidence > 65 {
				r.Confidence = 65
			}
			g = repairGeom(g)
		}
		geoms[i] = g
	}

	overlaps := 0
	adjacent := 0
	for i := 0; i < len(geoms); i++ {
		for j := i + 1; j < len(geoms); j++ {
			if !geoms[i].Intersects(geoms[j]) {
				continue
			}
			inter := geoms[i].Intersection(geoms[j])
			if inter == nil {
				continue
			}
			// Area-based test: shared boundaries intersect with zero area
			// and must not be flagged as overlaps.
			if inter.Area() > 0 {
				overlaps++
			} else {
				adjacent++
			}
			inter.Destroy()
		}
	}

	if overlaps > 0 {
		r = warn(r, "%d feature pairs overlap with nonzero area; districts should tile without overlap", overlaps)
		if r.Confidence > 60 {
			r.Confidence = 60
		}
	}
	if adjacent > 0 {
		r = warn(r, "%d feature pairs share boundary edges (expected for adjacent districts)", adjacent)
	}
	return r
}

// CoverageReport quantifies commit-time gap/overlap as percentages of parent
// area.
type CoverageReport struct {
	ParentArea   float64 `json:"parent_area"`
	UnionArea    float64 `json:"union_area"`
	OverlapPct   float64 `json:"overlap_pct"`
	GapPct       float64 `json:"gap_pct"`
	WithinBounds bool    `json:"within_bounds"`
}

// CheckCoverage is the stricter area-based variant used before committing a
// collection to the Merkle layer: it computes overlap as the summed pairwise
// intersection area and gap as parent minus union, both as percentages of
// the parent jurisdiction's area, and compares them against the configured
// tolerance.
//
// parentGeoJSON is the jurisdiction's own boundary geometry. An error means
// malformed geometry, not a failed check.
func (v *TopologyValidator) CheckCoverage(fc *geometry.FeatureCollection, parentGeoJSON []byte) (*CoverageReport, error) {
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("empty collection")
	}
	parent, err := geos.NewGeomFromGeoJSON(string(parentGeoJSON))
	if err != nil {
		return nil, fmt.Errorf("parse parent geometry: %w", err)
	}
	defer parent.Destroy()

	parentArea := parent.Area()
	if parentArea == 0 {
		return nil, fmt.Errorf("parent geometry has zero area")
	}

	geoms := make([]*geos.Geom, 0, len(fc.Features))
	defer func() {
		for _, g := range geoms {
			g.Destroy()
		}
	}()
	for i := range fc.Features {
		g, err := featureGeom(&fc.Features[i])
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", fc.Features[i].ID, err)
		}
		if !g.IsValid() {
			g = repairGeom(g)
		}
		geoms = append(geoms, g)
	}

	var overlapArea float64
	for i := 0; i < len(geoms); i++ {
		for j := i + 1; j < len(geoms); j++ {
			inter := geoms[i].Intersection(geoms[j])
			if inter == nil {
				continue
			}
			overlapArea += inter.Area()
			inter.Destroy()
		}
	}

	union := geoms[0].Clone()
	for _, g := range geoms[1:] {
		next := union.Union(g)
		union.Destroy()
		union = next
	}
	defer union.Destroy()

	covered := union.Intersection(parent)
	coveredArea := parentArea
	if covered != nil {
		coveredArea = covered.Area()
		covered.Destroy()
	}

	report := &CoverageReport{
		ParentArea: parentArea,
		UnionArea:  union.Area(),
		OverlapPct: 100 * overlapArea / parentArea,
		GapPct:     100 * (parentArea - coveredArea) / parentArea,
	}
	report.WithinBounds = report.OverlapPct <= v.TolerancePct && report.GapPct <= v.TolerancePct
	return report, nil
}

// repairGeom rebuilds an invalid geometry into valid linework, discarding
// collapsed components. Takes ownership of g and destroys it on success.
func repairGeom(g *geos.Geom) *geos.Geom {
	repaired := g.MakeValidWithParams(geos.MakeValidLinework, geos.MakeValidDiscardCollapsed)
	if repaired == nil {
		return g
	}
	g.Destroy()
	return repaired
}

func featureGeom(f *geometry.Feature) (*geos.Geom, error) {
	gj, err := f.GeoJSONGeometry()
	if err != nil {
		return nil, fmt.Errorf("serialize geometry: %w", err)
	}
	g, err := geos.NewGeomFromGeoJSON(string(gj))
	if err != nil {
		return nil, fmt.Errorf("parse geometry: %w", err)
	}
	return g, nil
}
