package redistricting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	oldRoot = "1111111111111111111111111111111111111111111111111111111111111111"
	newRoot = "2222222222222222222222222222222222222222222222222222222222222222"
)

func trackerAt(t *testing.T, now time.Time) *Tracker {
	t.Helper()
	return NewTracker().WithClock(func() time.Time { return now })
}

func portlandEvent() Event {
	return Event{
		JurisdictionID: "portland-or",
		DistrictType:   "council-district",
		EffectiveDate:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Source:         SourceCourtOrder,
		OldMerkleRoot:  oldRoot,
		NewMerkleRoot:  newRoot,
	}
}

func TestRegisterEventComputesWindow(t *testing.T) {
	tr := trackerAt(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	e, err := tr.RegisterEvent(portlandEvent())
	require.NoError(t, err)

	assert.NotEmpty(t, e.ID)
	// Effective 2024-01-15 plus the 30-day window.
	assert.Equal(t, time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC), e.DualValidityUntil)
	assert.False(t, e.Processed)
}

func TestRegisterEventValidation(t *testing.T) {
	tr := NewTracker()

	e := portlandEvent()
	e.JurisdictionID = ""
	_, err := tr.RegisterEvent(e)
	assert.Error(t, err)

	e = portlandEvent()
	e.OldMerkleRoot = ""
	_, err = tr.RegisterEvent(e)
	assert.Error(t, err)

	e = portlandEvent()
	e.Source = Source("rumor")
	_, err = tr.RegisterEvent(e)
	assert.Error(t, err)

	e = portlandEvent()
	e.EffectiveDate = time.Time{}
	_, err = tr.RegisterEvent(e)
	assert.Error(t, err)
}

func TestRestorePreservesPersistedWindows(t *testing.T) {
	// The persisted event carries a 10-day window; the tracker's own
	// configured window is the 30-day default and must not apply.
	tr := trackerAt(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	persisted := &Event{
		ID:                "evt-persisted",
		JurisdictionID:    "portland-or",
		DistrictType:      "council-district",
		EffectiveDate:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Source:            SourceCourtOrder,
		OldMerkleRoot:     oldRoot,
		NewMerkleRoot:     newRoot,
		DualValidityUntil: time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC),
		RegisteredAt:      time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, tr.Restore([]*Event{persisted}))

	// 2024-02-01 is inside the 30-day window but past the stored one.
	check := tr.IsRootValid("portland-or", oldRoot, newRoot)
	assert.False(t, check.Valid)
	assert.Equal(t, "invalid_root", check.Reason)

	got, err := tr.GetEvent("evt-persisted")
	require.NoError(t, err)
	assert.Equal(t, persisted.DualValidityUntil, got.DualValidityUntil)
}

func TestRestoreRejectsMalformedEvents(t *testing.T) {
	tr := NewTracker()
	assert.Error(t, tr.Restore([]*Event{nil}))
	assert.Error(t, tr.Restore([]*Event{{JurisdictionID: "portland-or"}}))

	e := &Event{ID: "evt-1", JurisdictionID: "portland-or",
		EffectiveDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)}
	assert.Error(t, tr.Restore([]*Event{e}), "missing dual-validity window")
}
	tr := trackerAt(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	_, err := tr.RegisterEvent(portlandEvent())
	require.NoError(t, err)

	// 2024-02-10: inside the window, both roots validate.
	tr.clock = func() time.Time { return time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC) }

	check := tr.IsRootValid("portland-or", newRoot, newRoot)
	assert.True(t, check.Valid)
	assert.Equal(t, "current_root", check.Reason)

	check = tr.IsRootValid("portland-or", oldRoot, newRoot)
	assert.True(t, check.Valid)
	assert.Equal(t, "dual_validity_until_2024-02-14", check.Reason)
}

func TestIsRootValidAfterWindowExpires(t *testing.T) {
	tr := trackerAt(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	_, err := tr.RegisterEvent(portlandEvent())
	require.NoError(t, err)

	// 2024-03-01: the window closed on 2024-02-14.
	tr.clock = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	check := tr.IsRootValid("portland-or", oldRoot, newRoot)
	assert.False(t, check.Valid)
	assert.Equal(t, "invalid_root", check.Reason)

	// The new root stays valid as the current root.
	check = tr.IsRootValid("portland-or", newRoot, newRoot)
	assert.True(t, check.Valid)
}

func TestIsRootValidBeforeEffectiveDate(t *testing.T) {
	// The old root validates as current before the transition; the dual
	// window has not opened yet.
	tr := trackerAt(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	_, err := tr.RegisterEvent(portlandEvent())
	require.NoError(t, err)

	check := tr.IsRootValid("portland-or", oldRoot, oldRoot)
	assert.True(t, check.Valid)
	assert.Equal(t, "current_root", check.Reason)

	check = tr.IsRootValid("portland-or", oldRoot, newRoot)
	assert.False(t, check.Valid, "window opens at the effective date, not registration")
}

func TestIsRootValidUnknownRoot(t *testing.T) {
	tr := trackerAt(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	_, err := tr.RegisterEvent(portlandEvent())
	require.NoError(t, err)

	check := tr.IsRootValid("portland-or", "3333333333333333333333333333333333333333333333333333333333333333", newRoot)
	assert.False(t, check.Valid)
	assert.Equal(t, "invalid_root", check.Reason)
}

func TestEventsEvaluatedIndependently(t *testing.T) {
	// Two transitions for different district types: one window's expiry must
	// not invalidate the other's open window.
	tr := trackerAt(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	first := portlandEvent()
	first.EffectiveDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := tr.RegisterEvent(first)
	require.NoError(t, err)

	second := portlandEvent()
	second.DistrictType = "school-board"
	second.EffectiveDate = time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	second.OldMerkleRoot = "4444444444444444444444444444444444444444444444444444444444444444"
	second.NewMerkleRoot = "5555555555555555555555555555555555555555555555555555555555555555"
	_, err = tr.RegisterEvent(second)
	require.NoError(t, err)

	// 2024-03-01: the first window (until 01-31) is closed, the second
	// (until 03-21) is open.
	tr.clock = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	check := tr.IsRootValid("portland-or", first.OldMerkleRoot, newRoot)
	assert.False(t, check.Valid)

	check = tr.IsRootValid("portland-or", second.OldMerkleRoot, "5555555555555555555555555555555555555555555555555555555555555555")
	assert.True(t, check.Valid)
}

func TestGetActiveEventsSortedAndFiltered(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	tr := trackerAt(t, now)

	late := portlandEvent()
	late.EffectiveDate = time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	registered, err := tr.RegisterEvent(late)
	require.NoError(t, err)

	early := portlandEvent()
	early.EffectiveDate = time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	_, err = tr.RegisterEvent(early)
	require.NoError(t, err)

	expired := portlandEvent()
	expired.EffectiveDate = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = tr.RegisterEvent(expired)
	require.NoError(t, err)

	active := tr.GetActiveEvents()
	require.Len(t, active, 2)
	assert.True(t, active[0].EffectiveDate.Before(active[1].EffectiveDate))

	// Processing removes an event from the active set.
	require.NoError(t, tr.MarkEventProcessed(registered.ID))
	active = tr.GetActiveEvents()
	require.Len(t, active, 1)
	assert.Equal(t, early.EffectiveDate, active[0].EffectiveDate)
}

func TestGetEventAndMarkProcessed(t *testing.T) {
	tr := trackerAt(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	registered, err := tr.RegisterEvent(portlandEvent())
	require.NoError(t, err)

	got, err := tr.GetEvent(registered.ID)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, got.ID)

	require.NoError(t, tr.MarkEventProcessed(registered.ID))
	got, err = tr.GetEvent(registered.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)

	_, err = tr.GetEvent("no-such-id")
	assert.Error(t, err)
	assert.Error(t, tr.MarkEventProcessed("no-such-id"))
}

func TestCustomWindow(t *testing.T) {
	tr := NewTrackerWithWindow(10 * 24 * time.Hour).
		WithClock(func() time.Time { return time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC) })
	e, err := tr.RegisterEvent(portlandEvent())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC), e.DualValidityUntil)
}
