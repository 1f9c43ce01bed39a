package dto

import (
	"time"

	"github.com/spec-kit/civic-portal/internal/domain"
)

// CreateIssueRequest payload.
type CreateIssueRequest struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Category    string               `json:"category"`
	Priority    domain.IssuePriority `json:"priority"`
	Department  *string              `json:"department"`
}

// TransitionRequest moves an issue to a target status.
type TransitionRequest struct {
	Status domain.IssueStatus `json:"status"`
	Reason *string            `json:"reason"`
}

// AssignRequest sets the issue's assignee.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// PriorityRequest sets triage priority.
type PriorityRequest struct {
	Priority domain.IssuePriority `json:"priority"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Text string `json:"text"`
}

// BulkUpdateRequest applies a status and/or priority change to many issues.
type BulkUpdateRequest struct {
	IssueIDs []string              `json:"issue_ids"`
	Status   *domain.IssueStatus   `json:"status"`
	Priority *domain.IssuePriority `json:"priority"`
}

// IssueSummary response.
type IssueSummary struct {
	ID             string               `json:"id"`
	TrackingNumber string               `json:"tracking_number"`
	Title          string               `json:"title"`
	Category       string               `json:"category"`
	Status         domain.IssueStatus   `json:"status"`
	Priority       domain.IssuePriority `json:"priority"`
	SubmittedBy    string               `json:"submitted_by"`
	AssignedTo     *string              `json:"assigned_to"`
	Department     *string              `json:"department"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// IssueDetailResponse provides full issue info plus reachable statuses.
type IssueDetailResponse struct {
	IssueSummary
	Description  string               `json:"description"`
	NextStatuses []domain.IssueStatus `json:"next_statuses"`
}

// CommentResponse represents one live comment.
type CommentResponse struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issue_id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TimelineEntryResponse is one row of the merged issue history.
type TimelineEntryResponse struct {
	Kind        string    `json:"kind"`
	ActorID     string    `json:"actor_id"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description"`

	FromStatus domain.IssueStatus `json:"from_status,omitempty"`
	ToStatus   domain.IssueStatus `json:"to_status,omitempty"`
	Reason     *string            `json:"reason,omitempty"`

	CommentID string `json:"comment_id,omitempty"`
	Text      string `json:"text,omitempty"`
	CanDelete bool   `json:"can_delete,omitempty"`
}

// BulkResultResponse is the accounting of one bulk operation.
type BulkResultResponse struct {
	Succeeded []string              `json:"succeeded"`
	Failed    []BulkFailureResponse `json:"failed"`
}

// BulkFailureResponse records one skipped issue.
type BulkFailureResponse struct {
	IssueID string `json:"issue_id"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
}
