// Package redistricting manages dual-validity windows around boundary
// transitions: when a jurisdiction redistricts, both the old and new Merkle
// roots validate as current until the window expires, so nobody is
// disenfranchised mid-transition by a root they had no way to refresh.
package redistricting

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDualValidityWindow is how long both roots stay valid after the
// effective date.
const DefaultDualValidityWindow = 30 * 24 * time.Hour

// Source is where a redistricting event originated.
type Source string

const (
	SourceCourtOrder  Source = "court_order"
	SourceLegislative Source = "legislative"
	SourceCensus      Source = "census"
)

// Event is one registered boundary transition. Events for the same
// jurisdiction but different district types are tracked independently.
type Event struct {
	ID                string    `json:"id"`
	JurisdictionID    string    `json:"jurisdiction_id"`
	DistrictType      string    `json:"district_type"`
	EffectiveDate     time.Time `json:"effective_date"`
	Source            Source    `json:"source"`
	OldMerkleRoot     string    `json:"old_merkle_root"`
	NewMerkleRoot     string    `json:"new_merkle_root"`
	DualValidityUntil time.Time `json:"dual_validity_until"`
	Processed         bool      `json:"processed"`
	RegisteredAt      time.Time `json:"registered_at"`
}

// RootCheck is the verdict of IsRootValid.
type RootCheck struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

// Tracker is the event store. Writes are serialized under the mutex; reads
// are pure computations over the locked snapshot. Construct one per process
// — "reset" is simply constructing a new instance.
type Tracker struct {
	mu     sync.RWMutex
	events map[string]*Event
	window time.Duration
	clock  func() time.Time
}

// NewTracker creates a tracker with the default 30-day window.
func NewTracker() *Tracker {
	return NewTrackerWithWindow(DefaultDualValidityWindow)
}

// NewTrackerWithWindow creates a tracker with a custom dual-validity window.
func NewTrackerWithWindow(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultDualValidityWindow
	}
	return &Tracker{
		events: make(map[string]*Event),
		window: window,
		clock:  time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (t *Tracker) WithClock(clock func() time.Time) *Tracker {
	t.clock = clock
	return t
}

// RegisterEvent validates and stores a transition, assigning an id and
// computing DualValidityUntil = EffectiveDate + window.
func (t *Tracker) RegisterEvent(e Event) (*Event, error) {
	if e.JurisdictionID == "" {
		return nil, fmt.Errorf("redistricting event requires a jurisdiction id")
	}
	if e.DistrictType == "" {
		return nil, fmt.Errorf("redistricting event requires a district type")
	}
	if e.EffectiveDate.IsZero() {
		return nil, fmt.Errorf("redistricting event requires an effective date")
	}
	if e.NewMerkleRoot == "" || e.OldMerkleRoot == "" {
		return nil, fmt.Errorf("redistricting event requires both old and new merkle roots")
	}
	switch e.Source {
	case SourceCourtOrder, SourceLegislative, SourceCensus:
	default:
		return nil, fmt.Errorf("unknown redistricting source %q", e.Source)
	}

	e.ID = uuid.New().String()
	e.DualValidityUntil = e.EffectiveDate.Add(t.window)
	e.RegisteredAt = t.clock()
	e.Processed = false

	t.mu.Lock()
	t.events[e.ID] = &e
	t.mu.Unlock()

	stored := e
	return &stored, nil
}

// Restore loads previously persisted events verbatim: ids, dual-validity
// windows and processed flags are trusted, never recomputed, so changing
// the configured window cannot retroactively shift a registered event.
func (t *Tracker) Restore(events []*Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range events {
		if e == nil || e.ID == "" {
			return fmt.Errorf("cannot restore a redistricting event without an id")
		}
		if e.JurisdictionID == "" || e.EffectiveDate.IsZero() || e.DualValidityUntil.IsZero() {
			return fmt.Errorf("cannot restore malformed redistricting event %q", e.ID)
		}
		copied := *e
		t.events[copied.ID] = &copied
	}
	return nil
}

// IsRootValid checks a candidate root for a jurisdiction, in order:
//
//  1. exact match against the current root            -> current_root
//  2. match against an unexpired event's old root     -> dual_validity_until_<date>
//  3. anything else                                   -> invalid_root
//
// An expired old root is explicitly invalid, not merely unrecognized.
func (t *Tracker) IsRootValid(jurisdictionID, candidateRoot, currentRoot string) RootCheck {
	if candidateRoot != "" && candidateRoot == currentRoot {
		return RootCheck{Valid: true, Reason: "current_root"}
	}

	now := t.clock()
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.events {
		if !strings.EqualFold(e.JurisdictionID, jurisdictionID) {
			continue
		}
		if e.OldMerkleRoot != candidateRoot {
			continue
		}
		// Each event is evaluated independently: one event's expiry does
		// not invalidate another's open window.
		if !now.Before(e.EffectiveDate) && now.Before(e.DualValidityUntil) {
			return RootCheck{
				Valid:  true,
				Reason: fmt.Sprintf("dual_validity_until_%s", e.DualValidityUntil.UTC().Format("2006-01-02")),
			}
		}
	}

	return RootCheck{Valid: false, Reason: "invalid_root"}
}

// GetActiveEvents lists unprocessed events whose windows have not expired,
// ordered by effective date then id for stable output.
func (t *Tracker) GetActiveEvents() []*Event {
	now := t.clock()
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*Event
	for _, e := range t.events {
		if e.Processed || !now.Before(e.DualValidityUntil) {
			continue
		}
		copied := *e
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EffectiveDate.Equal(out[j].EffectiveDate) {
			return out[i].EffectiveDate.Before(out[j].EffectiveDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetEvent returns a registered event by id.
func (t *Tracker) GetEvent(id string) (*Event, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.events[id]
	if !ok {
		return nil, fmt.Errorf("redistricting event %q not found", id)
	}
	copied := *e
	return &copied, nil
}

// MarkEventProcessed flags an event as handled by the ingestion pipeline.
func (t *Tracker) MarkEventProcessed(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.events[id]
	if !ok {
		return fmt.Errorf("redistricting event %q not found", id)
	}
	e.Processed = true
	return nil
}
