// Package store persists canonical boundary records, Merkle tree snapshots
// and redistricting events to an embedded SQLite database, with an
// append-only audit trail for every mutation.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/communisaas/boundary-atlas/pkg/audit"
	"github.com/communisaas/boundary-atlas/pkg/merkle"
	"github.com/communisaas/boundary-atlas/pkg/redistricting"

	_ "modernc.org/sqlite"
)

// RecordStatus is a stored boundary's lifecycle state.
type RecordStatus string

const (
	StatusAccepted    RecordStatus = "accepted"
	StatusQuarantined RecordStatus = "quarantined"
	StatusPromoted    RecordStatus = "promoted" // committed to a published root
)

// StoredRecord is a boundary record plus its storage lifecycle fields.
type StoredRecord struct {
	Record    merkle.BoundaryRecord `json:"record"`
	Status    RecordStatus          `json:"status"`
	LeafHash  string                `json:"leaf_hash,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Snapshot is one published tree version.
type Snapshot struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	Root      string    `json:"root"`
	LeafCount int       `json:"leaf_count"`
	CreatedAt time.Time `json:"created_at"`
}

// AtlasStore is the SQLite-backed persistence layer.
type AtlasStore struct {
	db    *sql.DB
	audit audit.Logger
	clock func() time.Time
}

// NewAtlasStore wraps a database handle and runs migrations.
func NewAtlasStore(db *sql.DB, auditLogger audit.Logger) (*AtlasStore, error) {
	if auditLogger == nil {
		auditLogger = audit.NewLogger()
	}
	s := &AtlasStore{db: db, audit: auditLogger, clock: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithClock overrides the clock for deterministic testing.
func (s *AtlasStore) WithClock(clock func() time.Time) *AtlasStore {
	s.clock = clock
	return s
}

func (s *AtlasStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS boundaries (
		district_id TEXT PRIMARY KEY,
		jurisdiction_id TEXT NOT NULL,
		layer TEXT NOT NULL,
		name TEXT,
		record JSON NOT NULL,
		status TEXT NOT NULL DEFAULT 'accepted',
		leaf_hash TEXT,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_boundaries_jurisdiction
		ON boundaries (jurisdiction_id, layer);
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		version TEXT NOT NULL,
		root TEXT NOT NULL,
		leaf_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS redistricting_events (
		id TEXT PRIMARY KEY,
		jurisdiction_id TEXT NOT NULL,
		district_type TEXT NOT NULL,
		effective_date DATETIME NOT NULL,
		source TEXT NOT NULL,
		old_merkle_root TEXT NOT NULL,
		new_merkle_root TEXT NOT NULL,
		dual_validity_until DATETIME NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		registered_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		entity TEXT NOT NULL,
		action TEXT NOT NULL,
		before JSON,
		after JSON,
		reason TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// SaveRecord upserts a boundary record, auditing add vs update with the
// prior state.
func (s *AtlasStore) SaveRecord(ctx context.Context, rec merkle.BoundaryRecord, leafHash, reason string) error {
	existing, err := s.GetRecord(ctx, rec.DistrictID)
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %q: %w", rec.DistrictID, err)
	}
	now := s.clock().UTC().Format(time.RFC3339Nano)

	query := `INSERT INTO boundaries (district_id, jurisdiction_id, layer, name, record, status, leaf_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(district_id) DO UPDATE SET
			jurisdiction_id=excluded.jurisdiction_id, layer=excluded.layer, name=excluded.name,
			record=excluded.record, leaf_hash=excluded.leaf_hash, updated_at=excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		rec.DistrictID, rec.JurisdictionID, rec.Layer, rec.Name, string(recJSON), string(StatusAccepted), leafHash, now)
	if err != nil {
		return fmt.Errorf("save boundary %q: %w", rec.DistrictID, err)
	}

	action := audit.ActionAdd
	var before any
	if existing != nil {
		action = audit.ActionUpdate
		before = existing
	}
	return s.audit.Record(ctx, action, "boundary:"+rec.DistrictID, before, rec, reason)
}

// GetRecord fetches a stored boundary. Returns sql.ErrNoRows when absent.
func (s *AtlasStore) GetRecord(ctx context.Context, districtID string) (*StoredRecord, error) {
	query := `SELECT record, status, leaf_hash, updated_at FROM boundaries WHERE district_id = ?`
	row := s.db.QueryRowContext(ctx, query, districtID)

	var (
		recJSON   string
		status    string
		leafHash  sql.NullString
		updatedAt string
	)
	if err := row.Scan(&recJSON, &status, &leafHash, &updatedAt); err != nil {
		return nil, err
	}
	var rec merkle.BoundaryRecord
	if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
		return nil, fmt.Errorf("decode boundary %q: %w", districtID, err)
	}
	return &StoredRecord{
		Record:    rec,
		Status:    RecordStatus(status),
		LeafHash:  leafHash.String,
		UpdatedAt: parseTime(updatedAt),
	}, nil
}

// ListByJurisdiction returns stored boundaries for a (jurisdiction, layer)
// in district-id order — the same canonical order the Merkle layer uses.
func (s *AtlasStore) ListByJurisdiction(ctx context.Context, jurisdictionID, layer string) ([]*StoredRecord, error) {
	query := `SELECT record, status, leaf_hash, updated_at FROM boundaries
		WHERE jurisdiction_id = ? AND layer = ? ORDER BY district_id`
	rows, err := s.db.QueryContext(ctx, query, jurisdictionID, layer)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*StoredRecord
	for rows.Next() {
		var (
			recJSON   string
			status    string
			leafHash  sql.NullString
			updatedAt string
		)
		if err := rows.Scan(&recJSON, &status, &leafHash, &updatedAt); err != nil {
			return nil, err
		}
		var rec merkle.BoundaryRecord
		if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
			return nil, err
		}
		out = append(out, &StoredRecord{
			Record:    rec,
			Status:    RecordStatus(status),
			LeafHash:  leafHash.String,
			UpdatedAt: parseTime(updatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetStatus transitions a record's lifecycle state and audits the change.
func (s *AtlasStore) SetStatus(ctx context.Context, districtID string, status RecordStatus, reason string) error {
	existing, err := s.GetRecord(ctx, districtID)
	if err != nil {
		return fmt.Errorf("status change for %q: %w", districtID, err)
	}

	now := s.clock().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`UPDATE boundaries SET status = ?, updated_at = ? WHERE district_id = ?`,
		string(status), now, districtID)
	if err != nil {
		return fmt.Errorf("status change for %q: %w", districtID, err)
	}

	action := audit.ActionUpdate
	switch status {
	case StatusQuarantined:
		action = audit.ActionQuarantine
	case StatusAccepted:
		action = audit.ActionRestore
	case StatusPromoted:
		action = audit.ActionPromote
	}
	after := *existing
	after.Status = status
	return s.audit.Record(ctx, action, "boundary:"+districtID, existing, after, reason)
}

// DeleteRecord removes a boundary, auditing the prior state.
func (s *AtlasStore) DeleteRecord(ctx context.Context, districtID, reason string) error {
	existing, err := s.GetRecord(ctx, districtID)
	if err != nil {
		return fmt.Errorf("delete %q: %w", districtID, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM boundaries WHERE district_id = ?`, districtID); err != nil {
		return fmt.Errorf("delete %q: %w", districtID, err)
	}
	return s.audit.Record(ctx, audit.ActionDelete, "boundary:"+districtID, existing, nil, reason)
}

// SaveSnapshot records a published tree version.
func (s *AtlasStore) SaveSnapshot(ctx context.Context, version, root string, leafCount int) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        uuid.New().String(),
		Version:   version,
		Root:      root,
		LeafCount: leafCount,
		CreatedAt: s.clock().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, version, root, leaf_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.Version, snap.Root, snap.LeafCount, snap.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	return snap, nil
}

// LatestSnapshot returns the most recently published snapshot, or nil when
// none exists.
func (s *AtlasStore) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, version, root, leaf_count, created_at FROM snapshots ORDER BY created_at DESC LIMIT 1`)
	var (
		snap      Snapshot
		createdAt string
	)
	if err := row.Scan(&snap.ID, &snap.Version, &snap.Root, &snap.LeafCount, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	snap.CreatedAt = parseTime(createdAt)
	return &snap, nil
}

// SaveEvent persists a registered redistricting event.
func (s *AtlasStore) SaveEvent(ctx context.Context, e *redistricting.Event) error {
	processed := 0
	if e.Processed {
		processed = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO redistricting_events
			(id, jurisdiction_id, district_type, effective_date, source, old_merkle_root, new_merkle_root, dual_validity_until, processed, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.JurisdictionID, e.DistrictType,
		e.EffectiveDate.UTC().Format(time.RFC3339Nano), string(e.Source),
		e.OldMerkleRoot, e.NewMerkleRoot,
		e.DualValidityUntil.UTC().Format(time.RFC3339Nano), processed,
		e.RegisteredAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save redistricting event: %w", err)
	}
	return nil
}

// ListEvents returns persisted events for a jurisdiction, newest first.
func (s *AtlasStore) ListEvents(ctx context.Context, jurisdictionID string) ([]*redistricting.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, jurisdiction_id, district_type, effective_date, source, old_merkle_root, new_merkle_root, dual_validity_until, processed, registered_at
		FROM redistricting_events WHERE jurisdiction_id = ? ORDER BY effective_date DESC`,
		jurisdictionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*redistricting.Event
	for rows.Next() {
		var (
			e             redistricting.Event
			effective     string
			source        string
			validUntil    string
			processed     int
			registeredAt  string
		)
		if err := rows.Scan(&e.ID, &e.JurisdictionID, &e.DistrictType, &effective, &source,
			&e.OldMerkleRoot, &e.NewMerkleRoot, &validUntil, &processed, &registeredAt); err != nil {
			return nil, err
		}
		e.EffectiveDate = parseTime(effective)
		e.Source = redistricting.Source(source)
		e.DualValidityUntil = parseTime(validUntil)
		e.Processed = processed != 0
		e.RegisteredAt = parseTime(registeredAt)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
