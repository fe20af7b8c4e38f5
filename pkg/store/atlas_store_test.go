package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communisaas/boundary-atlas/pkg/audit"
	"github.com/communisaas/boundary-atlas/pkg/merkle"
	"github.com/communisaas/boundary-atlas/pkg/redistricting"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*AtlasStore, sqlmock.Sqlmock, *bytes.Buffer) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS boundaries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	var auditBuf bytes.Buffer
	s, err := NewAtlasStore(db, audit.NewLoggerWithWriter(&auditBuf))
	require.NoError(t, err)
	return s.WithClock(func() time.Time { return fixedNow }), mock, &auditBuf
}

func testRecord() merkle.BoundaryRecord {
	return merkle.BoundaryRecord{
		DistrictID:     "portland-or-1",
		JurisdictionID: "portland-or",
		Layer:          "council-district",
		Name:           "Council District 1",
		Geometry:       json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`),
		SourceURL:      "https://gis.portland.gov/districts",
		Authority:      2,
		RetrievedAt:    "2025-06-01T00:00:00Z",
	}
}

func TestSaveRecordInsertsAndAuditsAdd(t *testing.T) {
	s, mock, auditBuf := newMockStore(t)
	rec := testRecord()

	mock.ExpectQuery("SELECT record, status, leaf_hash, updated_at FROM boundaries").
		WithArgs(rec.DistrictID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO boundaries").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.SaveRecord(context.Background(), rec, "aaaa", "initial commit")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Contains(t, auditBuf.String(), `"action":"ADD"`)
	assert.Contains(t, auditBuf.String(), "boundary:portland-or-1")
	assert.Contains(t, auditBuf.String(), "initial commit")
}

func TestSaveRecordUpdatesAndAuditsWithPriorState(t *testing.T) {
	s, mock, auditBuf := newMockStore(t)
	rec := testRecord()
	existing, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT record, status, leaf_hash, updated_at FROM boundaries").
		WithArgs(rec.DistrictID).
		WillReturnRows(sqlmock.NewRows([]string{"record", "status", "leaf_hash", "updated_at"}).
			AddRow(string(existing), "accepted", "aaaa", fixedNow.Format(time.RFC3339Nano)))
	mock.ExpectExec("INSERT INTO boundaries").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.SaveRecord(context.Background(), rec, "bbbb", "refreshed geometry")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Contains(t, auditBuf.String(), `"action":"UPDATE"`)
	assert.Contains(t, auditBuf.String(), `"before"`)
}

func TestGetRecordDecodes(t *testing.T) {
	s, mock, _ := newMockStore(t)
	rec := testRecord()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT record, status, leaf_hash, updated_at FROM boundaries").
		WithArgs(rec.DistrictID).
		WillReturnRows(sqlmock.NewRows([]string{"record", "status", "leaf_hash", "updated_at"}).
			AddRow(string(raw), "quarantined", "aaaa", fixedNow.Format(time.RFC3339Nano)))

	got, err := s.GetRecord(context.Background(), rec.DistrictID)
	require.NoError(t, err)
	assert.Equal(t, rec.DistrictID, got.Record.DistrictID)
	assert.Equal(t, StatusQuarantined, got.Status)
	assert.Equal(t, "aaaa", got.LeafHash)
	assert.True(t, got.UpdatedAt.Equal(fixedNow))
}

func TestSetStatusQuarantineAudits(t *testing.T) {
	s, mock, auditBuf := newMockStore(t)
	rec := testRecord()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT record, status, leaf_hash, updated_at FROM boundaries").
		WithArgs(rec.DistrictID).
		WillReturnRows(sqlmock.NewRows([]string{"record", "status", "leaf_hash", "updated_at"}).
			AddRow(string(raw), "accepted", "aaaa", fixedNow.Format(time.RFC3339Nano)))
	mock.ExpectExec("UPDATE boundaries SET status").
		WithArgs(string(StatusQuarantined), sqlmock.AnyArg(), rec.DistrictID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.SetStatus(context.Background(), rec.DistrictID, StatusQuarantined, "overlap above tolerance")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, auditBuf.String(), `"action":"QUARANTINE"`)
}

func TestSetStatusMissingRecord(t *testing.T) {
	s, mock, _ := newMockStore(t)
	mock.ExpectQuery("SELECT record, status, leaf_hash, updated_at FROM boundaries").
		WillReturnError(sql.ErrNoRows)

	err := s.SetStatus(context.Background(), "ghost", StatusQuarantined, "x")
	assert.Error(t, err)
}

func TestDeleteRecordAudits(t *testing.T) {
	s, mock, auditBuf := newMockStore(t)
	rec := testRecord()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT record, status, leaf_hash, updated_at FROM boundaries").
		WillReturnRows(sqlmock.NewRows([]string{"record", "status", "leaf_hash", "updated_at"}).
			AddRow(string(raw), "accepted", "aaaa", fixedNow.Format(time.RFC3339Nano)))
	mock.ExpectExec("DELETE FROM boundaries").
		WithArgs(rec.DistrictID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.DeleteRecord(context.Background(), rec.DistrictID, "superseded by court order"))
	assert.Contains(t, auditBuf.String(), `"action":"DELETE"`)
}

func TestSaveAndLatestSnapshot(t *testing.T) {
	s, mock, _ := newMockStore(t)

	mock.ExpectExec("INSERT INTO snapshots").
		WillReturnResult(sqlmock.NewResult(1, 1))
	snap, err := s.SaveSnapshot(context.Background(), "1.2.0", "cccc", 12)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "1.2.0", snap.Version)

	mock.ExpectQuery("SELECT id, version, root, leaf_count, created_at FROM snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "root", "leaf_count", "created_at"}).
			AddRow(snap.ID, "1.2.0", "cccc", 12, fixedNow.Format(time.RFC3339Nano)))
	latest, err := s.LatestSnapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "cccc", latest.Root)
}

func TestLatestSnapshotEmpty(t *testing.T) {
	s, mock, _ := newMockStore(t)
	mock.ExpectQuery("SELECT id, version, root, leaf_count, created_at FROM snapshots").
		WillReturnError(sql.ErrNoRows)

	latest, err := s.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSaveAndListEvents(t *testing.T) {
	s, mock, _ := newMockStore(t)
	event := &redistricting.Event{
		ID:                "evt-1",
		JurisdictionID:    "portland-or",
		DistrictType:      "council-district",
		EffectiveDate:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Source:            redistricting.SourceCourtOrder,
		OldMerkleRoot:     "1111",
		NewMerkleRoot:     "2222",
		DualValidityUntil: time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC),
		RegisteredAt:      fixedNow,
	}

	mock.ExpectExec("INSERT INTO redistricting_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, s.SaveEvent(context.Background(), event))

	mock.ExpectQuery("SELECT id, jurisdiction_id, district_type, effective_date").
		WithArgs("portland-or").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "jurisdiction_id", "district_type", "effective_date", "source",
			"old_merkle_root", "new_merkle_root", "dual_validity_until", "processed", "registered_at",
		}).AddRow(
			event.ID, event.JurisdictionID, event.DistrictType,
			event.EffectiveDate.Format(time.RFC3339Nano), string(event.Source),
			event.OldMerkleRoot, event.NewMerkleRoot,
			event.DualValidityUntil.Format(time.RFC3339Nano), 0,
			event.RegisteredAt.Format(time.RFC3339Nano),
		))

	events, err := s.ListEvents(context.Background(), "portland-or")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, redistricting.SourceCourtOrder, events[0].Source)
	assert.True(t, events[0].EffectiveDate.Equal(event.EffectiveDate))
	assert.False(t, events[0].Processed)
}
