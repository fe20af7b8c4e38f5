// Package governance implements the curated governance-structure registry:
// the authoritative override that decides whether district discovery should
// be attempted for a jurisdiction at all.
//
// The registry is manually verified external data, not computed. Its
// critical contract is zero false positives: discovery is skipped ONLY for
// jurisdictions with an explicit, sourced at-large confirmation. Absence
// from the registry must never cause a skip.
package governance

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Structure classifies how a jurisdiction elects its council.
type Structure string

const (
	AtLarge       Structure = "at-large"
	DistrictBased Structure = "district-based"
	Unknown       Structure = "unknown"
)

// Record is one curated registry entry.
type Record struct {
	JurisdictionID string    `json:"jurisdiction_id"`
	Structure      Structure `json:"structure"`
	// ShouldAttemptLayer1 reports whether district discovery should run.
	// False only for confirmed at-large jurisdictions.
	ShouldAttemptLayer1 bool `json:"should_attempt_layer1"`
	// ExpectedSeats is present only for district-based jurisdictions.
	ExpectedSeats int    `json:"expected_seats,omitempty"`
	Source        string `json:"source,omitempty"`
	LastVerified  string `json:"last_verified,omitempty"` // YYYY-MM-DD
}

// DistrictCheck is the verdict of ValidateDiscoveredDistricts.
type DistrictCheck struct {
	Valid           bool   `json:"valid"`
	Reason          string `json:"reason"`
	ExpectedCount   int    `json:"expected_count"`
	DiscoveredCount int    `json:"discovered_count"`
}

// registrySchema validates curated registry files at load time, so a typo in
// external data fails loudly instead of silently skipping a city.
const registrySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["jurisdiction_id", "structure"],
    "properties": {
      "jurisdiction_id": {"type": "string", "minLength": 1},
      "structure": {"enum": ["at-large", "district-based", "unknown"]},
      "should_attempt_layer1": {"type": "boolean"},
      "expected_seats": {"type": "integer", "minimum": 1},
      "source": {"type": "string"},
      "last_verified": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
    },
    "if": {"properties": {"structure": {"const": "district-based"}}},
    "then": {"required": ["expected_seats", "source"]},
    "additionalProperties": false
  }
}`

// Registry is the immutable in-memory lookup table. CheckGovernance is an
// O(1) map read; loading is the only place the table is written.
type Registry struct {
	records map[string]Record
}

// NewRegistry builds a registry from curated records. Records violating the
// zero-false-positive policy (a skip without an at-large confirmation) are
// rejected.
func NewRegistry(records []Record) (*Registry, error) {
	table := make(map[string]Record, len(records))
	for _, rec := range records {
		if rec.JurisdictionID == "" {
			return nil, fmt.Errorf("registry record with empty jurisdiction id")
		}
		if !rec.ShouldAttemptLayer1 && rec.Structure != AtLarge {
			return nil, fmt.Errorf("registry record %q skips discovery without an at-large confirmation (structure=%s)",
				rec.JurisdictionID, rec.Structure)
		}
		if rec.Structure == AtLarge && rec.Source == "" {
			return nil, fmt.Errorf("registry record %q marks at-large without a source citation", rec.JurisdictionID)
		}
		table[normalizeID(rec.JurisdictionID)] = rec
	}
	return &Registry{records: table}, nil
}

// LoadRegistry reads and schema-validates a curated registry JSON file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load governance registry: %w", err)
	}

	schema, err := jsonschema.CompileString("governance-registry.json", registrySchema)
	if err != nil {
		return nil, fmt.Errorf("compile registry schema: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("parse governance registry: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("governance registry failed schema validation: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode governance registry: %w", err)
	}
	return NewRegistry(records)
}

// CheckGovernance returns the governance record for a jurisdiction.
//
// Unknown jurisdictions fail open: the returned record has structure
// "unknown" and ShouldAttemptLayer1 true — never silently skip discovery for
// an unrecognized city.
func (r *Registry) CheckGovernance(jurisdictionID string) Record {
	if rec, ok := r.records[normalizeID(jurisdictionID)]; ok {
		// Defensive: unknown-structure entries also fail open.
		if rec.Structure == Unknown {
			rec.ShouldAttemptLayer1 = true
		}
		return rec
	}
	return Record{
		JurisdictionID:      jurisdictionID,
		Structure:           Unknown,
		ShouldAttemptLayer1: true,
	}
}

// ValidateDiscoveredDistricts cross-checks a discovered district count
// against the registry:
//
//	confirmed at-large        -> any nonzero count is invalid
//	confirmed district-based  -> count must exactly match registered seats
//	unregistered / unknown    -> any count accepted (no basis to reject)
func (r *Registry) ValidateDiscoveredDistricts(jurisdictionID string, discoveredCount int) DistrictCheck {
	rec := r.CheckGovernance(jurisdictionID)

	switch rec.Structure {
	case AtLarge:
		if discoveredCount > 0 {
			return DistrictCheck{
				Valid:           false,
				Reason:          fmt.Sprintf("%q is a confirmed at-large jurisdiction (%s); %d discovered districts must be spurious", jurisdictionID, rec.Source, discoveredCount),
				DiscoveredCount: discoveredCount,
			}
		}
		return DistrictCheck{
			Valid:           true,
			Reason:          fmt.Sprintf("%q is at-large; zero districts is the expected outcome", jurisdictionID),
			DiscoveredCount: discoveredCount,
		}
	case DistrictBased:
		if discoveredCount != rec.ExpectedSeats {
			return DistrictCheck{
				Valid:           false,
				Reason:          fmt.Sprintf("%q has %d registered district seats but %d were discovered", jurisdictionID, rec.ExpectedSeats, discoveredCount),
				ExpectedCount:   rec.ExpectedSeats,
				DiscoveredCount: discoveredCount,
			}
		}
		return DistrictCheck{
			Valid:           true,
			Reason:          fmt.Sprintf("discovered count matches the %d registered seats for %q", rec.ExpectedSeats, jurisdictionID),
			ExpectedCount:   rec.ExpectedSeats,
			DiscoveredCount: discoveredCount,
		}
	default:
		return DistrictCheck{
			Valid:           true,
			Reason:          fmt.Sprintf("%q is not in the governance registry; no basis to reject %d discovered districts", jurisdictionID, discoveredCount),
			DiscoveredCount: discoveredCount,
		}
	}
}

// ExpectedSeats returns the registered seat count for a district-based
// jurisdiction, or 0 when unknown.
func (r *Registry) ExpectedSeats(jurisdictionID string) int {
	rec := r.CheckGovernance(jurisdictionID)
	if rec.Structure == DistrictBased {
		return rec.ExpectedSeats
	}
	return 0
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
