// Package merkle commits validated boundary records into a content-addressed
// binary Merkle tree with per-leaf inclusion proofs and incremental append.
//
// Determinism contract: records are sorted by district identifier before
// leaf assignment, so rebuilding a tree from the same record set yields the
// identical root regardless of input arrival order. All digests are SHA-256,
// 64 lowercase hex chars, for leaves, internal nodes and roots alike.
package merkle

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/communisaas/boundary-atlas/pkg/geometry"
)

// Domain-separation prefixes for leaf and internal-node hashing.
const (
	LeafPrefix = "atlas:boundary:leaf:v1"
	NodePrefix = "atlas:boundary:node:v1"
)

// BoundaryRecord is the canonicalized form of one validated boundary: the
// identifier, geometry and essential provenance fields, serialized in a
// fixed field order before hashing.
type BoundaryRecord struct {
	DistrictID     string          `json:"district_id"`
	JurisdictionID string          `json:"jurisdiction_id"`
	Layer          string          `json:"layer"`
	Name           string          `json:"name,omitempty"`
	Geometry       json.RawMessage `json:"geometry"`
	SourceURL      string          `json:"source_url"`
	Authority      int             `json:"authority"`
	RetrievedAt    string          `json:"retrieved_at"` // RFC 3339 UTC
}

// RecordFromFeature builds a canonical record from a validated feature and
// its collection metadata.
func RecordFromFeature(f *geometry.Feature, meta geometry.SourceMetadata, layer string) (BoundaryRecord, error) {
	geom, err := f.GeoJSONGeometry()
	if err != nil {
		return BoundaryRecord{}, fmt.Errorf("record for %q: %w", f.ID, err)
	}
	return BoundaryRecord{
		DistrictID:     f.ID,
		JurisdictionID: meta.JurisdictionID,
		Layer:          layer,
		Name:           f.Name,
		Geometry:       geom,
		SourceURL:      meta.SourceURL,
		Authority:      int(meta.Authority),
		RetrievedAt:    meta.RetrievedAt.UTC().Format(time.RFC3339),
	}, nil
}

// CanonicalBytes returns the RFC 8785 (JCS) canonical JSON of the record.
// Two byte-identical outputs imply identical records; leaf hashes are
// computed over these bytes.
func (r BoundaryRecord) CanonicalBytes() ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record %q: %w", r.DistrictID, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize record %q: %w", r.DistrictID, err)
	}
	return canonical, nil
}
