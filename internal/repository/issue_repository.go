package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-portal/internal/domain"
)

// ErrStatusConflict signals that the compare-and-swap on the current status
// did not match: another transition landed first.
var ErrStatusConflict = fmt.Errorf("issue status changed concurrently")

// IssueFilter captures listing parameters.
type IssueFilter struct {
	SubmittedBy *string
	AssignedTo  *string
	Department  *string
	Statuses    []domain.IssueStatus
	Priorities  []domain.IssuePriority
	Category    *string
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	// ScopeActorID/ScopeDepartment restrict results to issues assigned to the
	// actor or belonging to their department (staff visibility scope).
	ScopeActorID    *string
	ScopeDepartment *string
	Limit           int
	Offset          int
}

// IssueRepository encapsulates issue persistence.
type IssueRepository interface {
	Create(ctx context.Context, issue *domain.Issue) error
	GetByID(ctx context.Context, id string) (*domain.Issue, error)
	GetByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Issue, error)
	ListWithFilter(ctx context.Context, filter IssueFilter) ([]domain.Issue, error)
	// TransitionStatus applies the status update and appends the status change
	// event in a single transaction. The UPDATE is conditional on the expected
	// current status; if zero rows match, ErrStatusConflict is returned and
	// nothing is written.
	TransitionStatus(ctx context.Context, issueID string, from, to domain.IssueStatus, event *domain.StatusChangeEvent) error
	UpdateAssignee(ctx context.Context, issueID string, assigneeID *string) error
	UpdatePriority(ctx context.Context, issueID string, priority domain.IssuePriority) error
}

type issueRepository struct {
	pool *pgxpool.Pool
}

// NewIssueRepository instantiates repository.
func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

const issueColumns = `id, tracking_number, title, description, category, status, priority,
               submitted_by, assigned_to, department, created_at, updated_at`

func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	const query = `
        INSERT INTO issues (tracking_number, title, description, category, status, priority, submitted_by, assigned_to, department)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		issue.TrackingNumber,
		issue.Title,
		issue.Description,
		issue.Category,
		issue.Status,
		issue.Priority,
		issue.SubmittedBy,
		issue.AssignedTo,
		issue.Department,
	).Scan(&issue.ID, &issue.CreatedAt, &issue.UpdatedAt)
}

func (r *issueRepository) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	query := fmt.Sprintf(`SELECT %s FROM issues WHERE id=$1`, issueColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *issueRepository) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Issue, error) {
	query := fmt.Sprintf(`SELECT %s FROM issues WHERE tracking_number=$1`, issueColumns)
	return r.fetchSingle(ctx, query, trackingNumber)
}

func (r *issueRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Issue, error) {
	var issue domain.Issue
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&issue.ID,
		&issue.TrackingNumber,
		&issue.Title,
		&issue.Description,
		&issue.Category,
		&issue.Status,
		&issue.Priority,
		&issue.SubmittedBy,
		&issue.AssignedTo,
		&issue.Department,
		&issue.CreatedAt,
		&issue.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (r *issueRepository) TransitionStatus(ctx context.Context, issueID string, from, to domain.IssueStatus, event *domain.StatusChangeEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cmd, err := tx.Exec(ctx,
		`UPDATE issues SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`,
		to, issueID, from)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		// Distinguish a vanished row from a lost race.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM issues WHERE id=$1)`, issueID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return ErrStatusConflict
	}

	if err := tx.QueryRow(ctx,
		`INSERT INTO status_change_events (issue_id, from_status, to_status, performed_by, reason)
         VALUES ($1,$2,$3,$4,$5)
         RETURNING id, seq, created_at`,
		issueID, from, to, event.PerformedBy, event.Reason,
	).Scan(&event.ID, &event.Seq, &event.CreatedAt); err != nil {
		return err
	}
	event.IssueID = issueID
	event.FromStatus = from
	event.ToStatus = to

	return tx.Commit(ctx)
}

func (r *issueRepository) UpdateAssignee(ctx context.Context, issueID string, assigneeID *string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE issues SET assigned_to=$1, updated_at=NOW() WHERE id=$2`,
		assigneeID, issueID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *issueRepository) UpdatePriority(ctx context.Context, issueID string, priority domain.IssuePriority) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE issues SET priority=$1, updated_at=NOW() WHERE id=$2`,
		priority, issueID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *issueRepository) ListWithFilter(ctx context.Context, filter IssueFilter) ([]domain.Issue, error) {
	base := fmt.Sprintf(`SELECT %s FROM issues`, issueColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.SubmittedBy != nil {
		args = append(args, *filter.SubmittedBy)
		clauses = append(clauses, fmt.Sprintf("submitted_by=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.Department != nil {
		args = append(args, *filter.Department)
		clauses = append(clauses, fmt.Sprintf("department=$%d", len(args)))
	}
	if filter.ScopeActorID != nil || filter.ScopeDepartment != nil {
		parts := []string{}
		if filter.ScopeActorID != nil {
			args = append(args, *filter.ScopeActorID)
			parts = append(parts, fmt.Sprintf("assigned_to=$%d", len(args)))
		}
		if filter.ScopeDepartment != nil {
			args = append(args, *filter.ScopeDepartment)
			parts = append(parts, fmt.Sprintf("department=$%d", len(args)))
		}
		clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIssues(rows)
}

func scanIssues(rows pgx.Rows) ([]domain.Issue, error) {
	var result []domain.Issue
	for rows.Next() {
		var issue domain.Issue
		if err := rows.Scan(
			&issue.ID,
			&issue.TrackingNumber,
			&issue.Title,
			&issue.Description,
			&issue.Category,
			&issue.Status,
			&issue.Priority,
			&issue.SubmittedBy,
			&issue.AssignedTo,
			&issue.Department,
			&issue.CreatedAt,
			&issue.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, issue)
	}
	return result, rows.Err()
}
