package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/civic-portal/internal/domain"
)

// CommentRepository manages issue comments. Deletion is a tombstone so the
// per-issue sequence stays stable for external references.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	GetByID(ctx context.Context, id string) (*domain.Comment, error)
	SoftDelete(ctx context.Context, id string) error
	ListLiveByIssue(ctx context.Context, issueID string) ([]domain.Comment, error)
}

type commentRepository struct {
	pool *pgxpool.Pool
}

// NewCommentRepository builds repository.
func NewCommentRepository(pool *pgxpool.Pool) CommentRepository {
	return &commentRepository{pool: pool}
}

func (r *commentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	const query = `
        INSERT INTO comments (issue_id, author_id, body)
        VALUES ($1,$2,$3)
        RETURNING id, seq, created_at`
	return r.pool.QueryRow(ctx, query,
		comment.IssueID,
		comment.AuthorID,
		comment.Text,
	).Scan(&comment.ID, &comment.Seq, &comment.CreatedAt)
}

func (r *commentRepository) GetByID(ctx context.Context, id string) (*domain.Comment, error) {
	const query = `
        SELECT id, seq, issue_id, author_id, body, created_at, deleted_at
        FROM comments WHERE id=$1`
	var comment domain.Comment
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&comment.ID,
		&comment.Seq,
		&comment.IssueID,
		&comment.AuthorID,
		&comment.Text,
		&comment.CreatedAt,
		&comment.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *commentRepository) SoftDelete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE comments SET deleted_at=NOW() WHERE id=$1 AND deleted_at IS NULL`,
		id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *commentRepository) ListLiveByIssue(ctx context.Context, issueID string) ([]domain.Comment, error) {
	const query = `
        SELECT id, seq, issue_id, author_id, body, created_at, deleted_at
        FROM comments WHERE issue_id=$1 AND deleted_at IS NULL ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Comment
	for rows.Next() {
		var comment domain.Comment
		if err := rows.Scan(
			&comment.ID,
			&comment.Seq,
			&comment.IssueID,
			&comment.AuthorID,
			&comment.Text,
			&comment.CreatedAt,
			&comment.DeletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, comment)
	}
	return result, rows.Err()
}
