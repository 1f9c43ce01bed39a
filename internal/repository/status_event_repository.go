package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-portal/internal/domain"
)

// StatusEventRepository reads the append-only audit trail. Writes happen
// inside IssueRepository.TransitionStatus so the event and the status update
// share one transaction.
type StatusEventRepository interface {
	ListByIssue(ctx context.Context, issueID string) ([]domain.StatusChangeEvent, error)
}

type statusEventRepository struct {
	pool *pgxpool.Pool
}

// NewStatusEventRepository builds repository.
func NewStatusEventRepository(pool *pgxpool.Pool) StatusEventRepository {
	return &statusEventRepository{pool: pool}
}

func (r *statusEventRepository) ListByIssue(ctx context.Context, issueID string) ([]domain.StatusChangeEvent, error) {
	const query = `
        SELECT id, seq, issue_id, from_status, to_status, performed_by, reason, created_at
        FROM status_change_events WHERE issue_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StatusChangeEvent
	for rows.Next() {
		var event domain.StatusChangeEvent
		if err := rows.Scan(
			&event.ID,
			&event.Seq,
			&event.IssueID,
			&event.FromStatus,
			&event.ToStatus,
			&event.PerformedBy,
			&event.Reason,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
