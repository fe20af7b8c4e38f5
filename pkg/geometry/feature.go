// Package geometry defines the canonical boundary feature model shared by
// the validators and the Merkle integration layer.
//
// All geometries are WGS84 polygons or multipolygons in longitude/latitude
// order. Raw acquisition output (ArcGIS, Socrata, TIGER exports) enters the
// core through ParseCollection, which either yields an invariant-checked
// FeatureCollection or a typed parse error — untyped property bags never
// leak past this boundary.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Coordinate is a single WGS84 position in lon/lat order.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Ring is a closed linear ring: first and last coordinates are equal and the
// ring carries at least 4 coordinates.
type Ring []Coordinate

// Polygon is an exterior ring followed by zero or more interior rings.
type Polygon []Ring

// Feature is a single boundary polygon or multipolygon plus its property bag.
type Feature struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Polygons   []Polygon      `json:"polygons"`
	Properties map[string]any `json:"properties,omitempty"`
}

// AuthorityClass classifies the provenance of a source, highest authority
// first. Lower values outrank higher ones.
type AuthorityClass int

const (
	AuthorityCourtOrder    AuthorityClass = 1 // court order / redistricting commission
	AuthorityStateOfficial AuthorityClass = 2 // state official GIS
	AuthorityFederal       AuthorityClass = 3 // federal general-purpose (e.g. TIGER)
	AuthorityCommunity     AuthorityClass = 4 // community-maintained (e.g. OSM)
)

func (a AuthorityClass) String() string {
	switch a {
	case AuthorityCourtOrder:
		return "court-order"
	case AuthorityStateOfficial:
		return "state-official"
	case AuthorityFederal:
		return "federal-general-purpose"
	case AuthorityCommunity:
		return "community-maintained"
	default:
		return fmt.Sprintf("authority(%d)", int(a))
	}
}

// SourceMetadata describes where a collection came from.
type SourceMetadata struct {
	SourceURL        string         `json:"source_url"`
	Authority        AuthorityClass `json:"authority"`
	CollectionMethod string         `json:"collection_method,omitempty"`
	License          string         `json:"license,omitempty"`
	Checksum         string         `json:"checksum,omitempty"`
	RetrievedAt      time.Time      `json:"retrieved_at"`
	JurisdictionID   string         `json:"jurisdiction_id"`
	Verified         bool           `json:"verified"`
}

// FeatureCollection is an ordered list of features plus source metadata.
// Order is not significant for validation; the Merkle layer re-sorts by
// identifier before hashing.
type FeatureCollection struct {
	Features []Feature      `json:"features"`
	Meta     SourceMetadata `json:"meta"`
}

// ParseError is a typed malformation of external geometry input.
type ParseError struct {
	FeatureIndex int    // -1 for collection-level problems
	Reason       string
}

func (e *ParseError) Error() string {
	if e.FeatureIndex < 0 {
		return fmt.Sprintf("geometry parse: %s", e.Reason)
	}
	return fmt.Sprintf("geometry parse: feature %d: %s", e.FeatureIndex, e.Reason)
}

// rawFeatureCollection mirrors the RFC 7946 shape we accept from the
// acquisition layer.
type rawFeatureCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

type rawFeature struct {
	Type       string         `json:"type"`
	ID         any            `json:"id,omitempty"`
	Geometry   *rawGeometry   `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Candidate property keys for feature identifiers, checked in priority order.
var idKeys = []string{"GEOID", "geoid", "OBJECTID", "objectid", "DISTRICT", "district", "id"}

// ParseCollection converts a raw GeoJSON-like payload into a canonical,
// invariant-checked FeatureCollection. Meta is attached by the caller.
func ParseCollection(raw []byte, meta SourceMetadata) (*FeatureCollection, error) {
	var rc rawFeatureCollection
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, &ParseError{FeatureIndex: -1, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if rc.Type != "FeatureCollection" {
		return nil, &ParseError{FeatureIndex: -1, Reason: fmt.Sprintf("expected FeatureCollection, got %q", rc.Type)}
	}

	fc := &FeatureCollection{Meta: meta, Features: make([]Feature, 0, len(rc.Features))}
	for i, rf := range rc.Features {
		if rf.Geometry == nil {
			return nil, &ParseError{FeatureIndex: i, Reason: "missing geometry"}
		}

		var polys []Polygon
		switch rf.Geometry.Type {
		case "Polygon":
			var coords [][][2]float64
			if err := json.Unmarshal(rf.Geometry.Coordinates, &coords); err != nil {
				return nil, &ParseError{FeatureIndex: i, Reason: fmt.Sprintf("malformed Polygon coordinates: %v", err)}
			}
			polys = []Polygon{toPolygon(coords)}
		case "MultiPolygon":
			var coords [][][][2]float64
			if err := json.Unmarshal(rf.Geometry.Coordinates, &coords); err != nil {
				return nil, &ParseError{FeatureIndex: i, Reason: fmt.Sprintf("malformed MultiPolygon coordinates: %v", err)}
			}
			for _, p := range coords {
				polys = append(polys, toPolygon(p))
			}
		default:
			return nil, &ParseError{FeatureIndex: i, Reason: fmt.Sprintf("unsupported geometry type %q", rf.Geometry.Type)}
		}

		f := Feature{
			ID:         extractID(rf, i),
			Polygons:   polys,
			Properties: rf.Properties,
		}
		if err := f.ValidateRings(); err != nil {
			return nil, &ParseError{FeatureIndex: i, Reason: err.Error()}
		}
		fc.Features = append(fc.Features, f)
	}
	return fc, nil
}

func toPolygon(coords [][][2]float64) Polygon {
	poly := make(Polygon, len(coords))
	for r, ring := range coords {
		rr := make(Ring, len(ring))
		for c, pt := range ring {
			rr[c] = Coordinate{Lon: pt[0], Lat: pt[1]}
		}
		poly[r] = rr
	}
	return poly
}

func extractID(rf rawFeature, index int) string {
	if rf.ID != nil {
		return stringify(rf.ID)
	}
	for _, key := range idKeys {
		if v, ok := rf.Properties[key]; ok && v != nil {
			return stringify(v)
		}
	}
	// Synthetic fallback keeps the record addressable; the name-pattern
	// validator warns separately when display names are missing.
	return fmt.Sprintf("feature-%d", index)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ValidateRings checks the ring invariants: every ring closed, ≥4
// coordinates, all values finite.
func (f *Feature) ValidateRings() error {
	if len(f.Polygons) == 0 {
		return fmt.Errorf("feature %q has no polygons", f.ID)
	}
	for pi, poly := range f.Polygons {
		if len(poly) == 0 {
			return fmt.Errorf("feature %q polygon %d has no rings", f.ID, pi)
		}
		for ri, ring := range poly {
			if len(ring) < 4 {
				return fmt.Errorf("feature %q polygon %d ring %d has %d coordinates, need at least 4", f.ID, pi, ri, len(ring))
			}
			if ring[0] != ring[len(ring)-1] {
				return fmt.Errorf("feature %q polygon %d ring %d is not closed", f.ID, pi, ri)
			}
			for ci, c := range ring {
				if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) || math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) {
					return fmt.Errorf("feature %q polygon %d ring %d coordinate %d is not finite", f.ID, pi, ri, ci)
				}
			}
		}
	}
	return nil
}

// GeoJSONGeometry renders the feature's geometry back to RFC 7946 bytes.
// Used by the topology validator to hand geometries to GEOS.
func (f *Feature) GeoJSONGeometry() ([]byte, error) {
	if len(f.Polygons) == 1 {
		return json.Marshal(map[string]any{
			"type":        "Polygon",
			"coordinates": polygonCoords(f.Polygons[0]),
		})
	}
	multi := make([][][][2]float64, len(f.Polygons))
	for i, p := range f.Polygons {
		multi[i] = polygonCoords(p)
	}
	return json.Marshal(map[string]any{
		"type":        "MultiPolygon",
		"coordinates": multi,
	})
}

func polygonCoords(p Polygon) [][][2]float64 {
	out := make([][][2]float64, len(p))
	for r, ring := range p {
		out[r] = make([][2]float64, len(ring))
		for c, pt := range ring {
			out[r][c] = [2]float64{pt.Lon, pt.Lat}
		}
	}
	return out
}
