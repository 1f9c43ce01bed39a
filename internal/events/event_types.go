package events

import (
	"time"

	"github.com/spec-kit/civic-portal/internal/domain"
)

// EventType enumerates the closed set of domain events.
type EventType string

const (
	EventIssueCreated  EventType = "issue_created"
	EventStatusChanged EventType = "status_changed"
	EventIssueAssigned EventType = "issue_assigned"
	EventCommentAdded  EventType = "comment_added"
	EventBulkCompleted EventType = "bulk_completed"
)

// Event is the stable contract between the state machine and its consumers.
// Consumers must tolerate duplicate delivery; the ID identifies the source
// event across retries and reconnects.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	IssueID   string    `json:"issue_id,omitempty"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// IssueCreatedPayload payload.
type IssueCreatedPayload struct {
	TrackingNumber string               `json:"tracking_number"`
	Title          string               `json:"title"`
	Category       string               `json:"category"`
	Priority       domain.IssuePriority `json:"priority"`
	SubmittedBy    string               `json:"submitted_by"`
	Department     *string              `json:"department,omitempty"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	FromStatus domain.IssueStatus `json:"from_status"`
	ToStatus   domain.IssueStatus `json:"to_status"`
	Reason     *string            `json:"reason,omitempty"`
}

// IssueAssignedPayload payload.
type IssueAssignedPayload struct {
	AssigneeID string  `json:"assignee_id"`
	PreviousID *string `json:"previous_id,omitempty"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	CommentID   string `json:"comment_id"`
	AuthorID    string `json:"author_id"`
	TextPreview string `json:"text_preview"`
}

// BulkCompletedPayload payload.
type BulkCompletedPayload struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
