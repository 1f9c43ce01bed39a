package domain

import "time"

// StatusChangeEvent is an append-only audit record of one status transition.
// Events are immutable once written; replaying them in sequence order
// reconstructs the issue's current status exactly.
type StatusChangeEvent struct {
	ID          string
	IssueID     string
	FromStatus  IssueStatus
	ToStatus    IssueStatus
	PerformedBy string
	Reason      *string
	Seq         int64
	CreatedAt   time.Time
}
