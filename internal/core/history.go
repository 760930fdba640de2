package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// snapshotVersion tags serialized document snapshots so they stay
// replayable if the document schema evolves.
const snapshotVersion = 1

// HistoryRecord is one append-only audit entry. Records are never updated
// or deleted; a history-write failure aborts the mutation it documents.
type HistoryRecord struct {
	ID         int64
	DocType    DocType
	DocumentID int
	Action     Action
	OldStatus  *Status
	NewStatus  *Status
	ActorID    int
	Reason     *string
	Before     json.RawMessage
	After      json.RawMessage
	CreatedAt  time.Time
}

// snapshot serializes a typed document struct into a versioned audit blob.
func snapshot(doc any) (json.RawMessage, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(struct {
		Version int `json:"version"`
		Doc     any `json:"doc"`
	}{Version: snapshotVersion, Doc: doc})
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot document: %w", err)
	}
	return raw, nil
}

// appendHistoryTx writes one audit record inside the caller's transaction.
// All document mutations call this as their final step, so the record and
// the mutation commit or roll back together.
func appendHistoryTx(ctx context.Context, tx pgx.Tx, rec HistoryRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO document_history (doc_type, document_id, action, old_status, new_status, actor_id, reason, before_snapshot, after_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, string(rec.DocType), rec.DocumentID, string(rec.Action), rec.OldStatus, rec.NewStatus,
		rec.ActorID, rec.Reason, rec.Before, rec.After)
	if err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}
	return nil
}

// HistoryService provides read access to the audit trail.
type HistoryService interface {
	// ListHistory returns all audit records for one document, oldest first.
	ListHistory(ctx context.Context, dt DocType, documentID int) ([]HistoryRecord, error)
}

type historyService struct {
	pool *pgxpool.Pool
}

// NewHistoryService constructs a HistoryService backed by PostgreSQL.
func NewHistoryService(pool *pgxpool.Pool) HistoryService {
	return &historyService{pool: pool}
}

func (s *historyService) ListHistory(ctx context.Context, dt DocType, documentID int) ([]HistoryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, doc_type, document_id, action, old_status, new_status, actor_id, reason, before_snapshot, after_snapshot, created_at
		FROM document_history
		WHERE doc_type = $1 AND document_id = $2
		ORDER BY id
	`, string(dt), documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var r HistoryRecord
		if err := rows.Scan(&r.ID, &r.DocType, &r.DocumentID, &r.Action, &r.OldStatus, &r.NewStatus,
			&r.ActorID, &r.Reason, &r.Before, &r.After, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
