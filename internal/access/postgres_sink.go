package access

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triagecore/triagecore/pkg/models"
)

// PostgresSink appends audit entries to Postgres. Entries are never updated
// or deleted by the application.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Append(ctx context.Context, entry models.AuditEntry) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO audit_log (id, principal_id, role, permission, outcome, reason, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
    `,
		entry.ID, entry.PrincipalID, string(entry.Role), entry.Permission,
		string(entry.Outcome), entry.Reason, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// RecentByPrincipal fetches the newest n audit entries for one principal.
func (s *PostgresSink) RecentByPrincipal(ctx context.Context, principalID string, n int) ([]models.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, principal_id, role, permission, outcome, reason, created_at
        FROM audit_log WHERE principal_id=$1 ORDER BY created_at DESC LIMIT $2
    `, principalID, n)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	out := make([]models.AuditEntry, 0)
	for rows.Next() {
		var e models.AuditEntry
		var role, outcome string
		if err := rows.Scan(&e.ID, &e.PrincipalID, &role, &e.Permission, &outcome, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Role = models.RoleName(role)
		e.Outcome = models.AuditOutcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}
