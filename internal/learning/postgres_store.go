package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triagecore/triagecore/pkg/models"
)

// PostgresStore persists approval history in Postgres. The retention window
// is enforced at read time: only the newest historyCap records are visible.
type PostgresStore struct {
	pool       *pgxpool.Pool
	historyCap int
}

func NewPostgresStore(pool *pgxpool.Pool, historyCap int) *PostgresStore {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &PostgresStore{pool: pool, historyCap: historyCap}
}

func (s *PostgresStore) Append(ctx context.Context, rec *models.ApprovalRecord) error {
	var diffJSON []byte
	if rec.Diff != nil {
		var err error
		diffJSON, err = json.Marshal(rec.Diff)
		if err != nil {
			return fmt.Errorf("encoding edit diff: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
        INSERT INTO approval_records (id, conversation_id, intent, proposed_text, approved_text, was_edited, diff, confidence, time_to_approval_ms, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    `,
		rec.ID, rec.ConversationID, string(rec.Intent), rec.ProposedText, rec.ApprovedText,
		rec.WasEdited, diffJSON, rec.Confidence, rec.TimeToApproval.Milliseconds(), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting approval record: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.ApprovalRecord, error) {
	return s.query(ctx, `
        SELECT id, conversation_id, intent, proposed_text, approved_text, was_edited, diff, confidence, time_to_approval_ms, created_at
        FROM (
            SELECT * FROM approval_records ORDER BY created_at DESC LIMIT $1
        ) recent ORDER BY created_at ASC
    `, s.historyCap)
}

func (s *PostgresStore) ListByIntent(ctx context.Context, intent models.Intent) ([]models.ApprovalRecord, error) {
	return s.query(ctx, `
        SELECT id, conversation_id, intent, proposed_text, approved_text, was_edited, diff, confidence, time_to_approval_ms, created_at
        FROM (
            SELECT * FROM approval_records ORDER BY created_at DESC LIMIT $1
        ) recent WHERE intent = $2 ORDER BY created_at ASC
    `, s.historyCap, string(intent))
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]models.ApprovalRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying approval records: %w", err)
	}
	defer rows.Close()

	// Always return a non-nil slice so JSON encodes as [] instead of null
	out := make([]models.ApprovalRecord, 0)
	for rows.Next() {
		var (
			rec      models.ApprovalRecord
			intent   string
			diffJSON []byte
			ttaMS    int64
			created  time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.ConversationID, &intent, &rec.ProposedText, &rec.ApprovedText,
			&rec.WasEdited, &diffJSON, &rec.Confidence, &ttaMS, &created); err != nil {
			return nil, fmt.Errorf("scanning approval record: %w", err)
		}
		rec.Intent = models.Intent(intent)
		rec.TimeToApproval = time.Duration(ttaMS) * time.Millisecond
		rec.CreatedAt = created
		if len(diffJSON) > 0 {
			var d models.EditDiff
			if err := json.Unmarshal(diffJSON, &d); err == nil {
				rec.Diff = &d
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
