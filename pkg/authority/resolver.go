// Package authority resolves conflicts between multiple sources claiming the
// same (jurisdiction, layer): it ranks candidates by the fixed source
// hierarchy and selects exactly one canonical boundary, recording a reasoned
// decision for audit.
package authority

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/communisaas/boundary-atlas/pkg/geometry"
)

// Candidate is one source's claim over a (jurisdiction, layer) pair.
type Candidate struct {
	SourceURL    string                  `json:"source_url"`
	Authority    geometry.AuthorityClass `json:"authority"`
	Vintage      time.Time               `json:"vintage"`
	FeatureCount int                     `json:"feature_count"`
	Collection   *geometry.FeatureCollection `json:"-"`
}

// Decision selects the canonical boundary among candidates. Reasoning is a
// hard requirement: authority decisions are audited, so every decision
// carries a human-readable trail.
type Decision struct {
	DecisionID     string    `json:"decision_id"`
	JurisdictionID string    `json:"jurisdiction_id"`
	Layer          string    `json:"layer"`
	SelectedIndex  int       `json:"selected_index"` // -1 when unresolved
	Preference     []int     `json:"preference"`     // candidate indexes, most to least preferred
	AuthorityRank  int       `json:"authority_rank"` // lower = more authoritative
	Confidence     float64   `json:"confidence"`     // 0-1
	Reasoning      string    `json:"reasoning"`
	Unresolved     bool      `json:"unresolved"`
	DecidedAt      time.Time `json:"decided_at"`
	ContentHash    string    `json:"content_hash"`
}

// Resolver ranks boundary sources. expectedCount, when nonzero, breaks
// final ties by data completeness (feature count closest to the registry
// expectation).
type Resolver struct {
	clock func() time.Time
}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (r *Resolver) WithClock(clock func() time.Time) *Resolver {
	r.clock = clock
	return r
}

// Resolve produces exactly one Decision for the candidate set.
//
// Ranking: court-order > state-official > federal-general-purpose >
// community-maintained; ties broken by most-recent vintage, then by feature
// count closest to expectedCount. An empty candidate set, or a tie the
// hierarchy and tiebreakers cannot split, yields an explicit unresolved
// decision rather than an arbitrary pick: the operator queue picks it up.
func (r *Resolver) Resolve(jurisdictionID, layer string, candidates []Candidate, expectedCount int) *Decision {
	now := r.clock()
	d := &Decision{
		DecisionID:     uuid.New().String(),
		JurisdictionID: jurisdictionID,
		Layer:          layer,
		SelectedIndex:  -1,
		DecidedAt:      now,
	}

	if len(candidates) == 0 {
		d.Unresolved = true
		d.Reasoning = fmt.Sprintf("no candidate sources for %s/%s; queued for operator resolution", jurisdictionID, layer)
		d.seal()
		return d
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return r.prefer(candidates[order[a]], candidates[order[b]], expectedCount)
	})

	d.Preference = order

	if len(candidates) > 1 && exhausted(candidates[order[0]], candidates[order[1]], expectedCount) {
		tiedCount := 1
		for _, idx := range order[1:] {
			if !exhausted(candidates[order[0]], candidates[idx], expectedCount) {
				break
			}
			tiedCount++
		}
		d.Unresolved = true
		d.Reasoning = fmt.Sprintf("%d of %d candidate sources tie on authority, vintage and feature count for %s/%s; queued for operator resolution",
			tiedCount, len(candidates), jurisdictionID, layer)
		d.seal()
		return d
	}

	d.SelectedIndex = order[0]
	selected := candidates[d.SelectedIndex]
	d.AuthorityRank = int(selected.Authority)
	d.Confidence = confidenceFor(selected, candidates, order)
	d.Reasoning = r.explain(selected, candidates, order, expectedCount)
	d.seal()
	return d
}

// prefer reports whether candidate a outranks candidate b.
func (r *Resolver) prefer(a, b Candidate, expectedCount int) bool {
	if a.Authority != b.Authority {
		return a.Authority < b.Authority
	}
	if !a.Vintage.Equal(b.Vintage) {
		return a.Vintage.After(b.Vintage)
	}
	if expectedCount > 0 {
		da := abs(a.FeatureCount - expectedCount)
		db := abs(b.FeatureCount - expectedCount)
		if da != db {
			return da < db
		}
	}
	// Stable fallback keeps the preference list deterministic; Resolve
	// surfaces candidates this deep in the tiebreak chain as unresolved.
	return a.SourceURL < b.SourceURL
}

// exhausted reports whether every ranking criterion fails to separate a
// and b, leaving no defensible basis to select one over the other.
func exhausted(a, b Candidate, expectedCount int) bool {
	if a.Authority != b.Authority || !a.Vintage.Equal(b.Vintage) {
		return false
	}
	if expectedCount > 0 {
		return abs(a.FeatureCount-expectedCount) == abs(b.FeatureCount-expectedCount)
	}
	return true
}

func confidenceFor(selected Candidate, candidates []Candidate, order []int) float64 {
	// Sole source: authoritative but uncorroborated.
	if len(candidates) == 1 {
		return 0.8
	}
	runnerUp := candidates[order[1]]
	if selected.Authority < runnerUp.Authority {
		return 0.95 // clear hierarchy win
	}
	return 0.7 // decided on tiebreakers only
}

func (r *Resolver) explain(selected Candidate, candidates []Candidate, order []int, expectedCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "selected %s source %s (vintage %s, %d features)",
		selected.Authority, selected.SourceURL, selected.Vintage.Format("2006-01-02"), selected.FeatureCount)
	if expectedCount > 0 {
		fmt.Fprintf(&b, "; registry expects %d districts", expectedCount)
	}
	for _, idx := range order[1:] {
		c := candidates[idx]
		switch {
		case c.Authority > selected.Authority:
			fmt.Fprintf(&b, "; rejected %s source %s (lower authority)", c.Authority, c.SourceURL)
		case c.Vintage.Before(selected.Vintage):
			fmt.Fprintf(&b, "; rejected %s source %s (older vintage %s)", c.Authority, c.SourceURL, c.Vintage.Format("2006-01-02"))
		default:
			fmt.Fprintf(&b, "; rejected %s source %s (further from expected count)", c.Authority, c.SourceURL)
		}
	}
	return b.String()
}

// seal computes the audit content hash over the decision's stable fields.
func (d *Decision) seal() {
	hashable := struct {
		JurisdictionID string  `json:"jurisdiction_id"`
		Layer          string  `json:"layer"`
		SelectedIndex  int     `json:"selected_index"`
		Confidence     float64 `json:"confidence"`
		Reasoning      string  `json:"reasoning"`
	}{d.JurisdictionID, d.Layer, d.SelectedIndex, d.Confidence, d.Reasoning}
	data, _ := json.Marshal(hashable)
	h := sha256.Sum256(data)
	d.ContentHash = hex.EncodeToString(h[:])
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
