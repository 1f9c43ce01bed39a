package domain

import "time"

// NotificationType enumerates the kinds of notifications delivered to users.
type NotificationType string

const (
	NotificationStatusChanged NotificationType = "status_changed"
	NotificationIssueAssigned NotificationType = "issue_assigned"
	NotificationCommentAdded  NotificationType = "comment_added"
	NotificationIssueCreated  NotificationType = "issue_created"
	NotificationBulkCompleted NotificationType = "bulk_completed"
)

// Notification is the durable trace of a fan-out delivery. It is created only
// as a side effect of a domain event and is read and cleared solely by its
// recipient. Real-time push is best-effort on top of this record.
type Notification struct {
	ID          string
	RecipientID string
	Type        NotificationType
	Payload     map[string]any
	IsRead      bool
	CreatedAt   time.Time
}
