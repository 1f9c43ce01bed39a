package domain

import "time"

// IssueStatus enumerates lifecycle states for reported issues.
type IssueStatus string

const (
	IssueStatusOpen        IssueStatus = "Open"
	IssueStatusInProgress  IssueStatus = "In Progress"
	IssueStatusUnderReview IssueStatus = "Under Review"
	IssueStatusResolved    IssueStatus = "Resolved"
	IssueStatusClosed      IssueStatus = "Closed"
)

// ValidStatus reports whether the status is one of the five lifecycle states.
func ValidStatus(status IssueStatus) bool {
	_, ok := allowedTransitions[status]
	return ok
}

// IssuePriority enumerates triage urgency.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "low"
	IssuePriorityMedium IssuePriority = "medium"
	IssuePriorityHigh   IssuePriority = "high"
	IssuePriorityUrgent IssuePriority = "urgent"
)

// ValidPriority reports whether the priority is a known level.
func ValidPriority(priority IssuePriority) bool {
	switch priority {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh, IssuePriorityUrgent:
		return true
	}
	return false
}

// Issue is the aggregate for citizen-reported civic issues. Issues are created
// with status Open and are never deleted; closed issues remain for audit.
type Issue struct {
	ID             string
	TrackingNumber string
	Title          string
	Description    string
	Category       string
	Status         IssueStatus
	Priority       IssuePriority
	SubmittedBy    string
	AssignedTo     *string
	Department     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// allowedTransitions fixes the lifecycle graph. Closed is terminal. Open is
// the initial state and is only reachable again by reverting from In Progress.
var allowedTransitions = map[IssueStatus][]IssueStatus{
	IssueStatusOpen:        {IssueStatusInProgress},
	IssueStatusInProgress:  {IssueStatusUnderReview, IssueStatusOpen},
	IssueStatusUnderReview: {IssueStatusResolved, IssueStatusInProgress},
	IssueStatusResolved:    {IssueStatusClosed, IssueStatusInProgress},
	IssueStatusClosed:      {},
}

// CanTransitionTo reports whether (current, next) is an edge of the lifecycle
// graph. A no-op (next == current) is not an edge; callers treat it as an
// idempotent accept before consulting the graph.
func CanTransitionTo(current, next IssueStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from the given state.
func NextStatuses(current IssueStatus) []IssueStatus {
	next := allowedTransitions[current]
	out := make([]IssueStatus, len(next))
	copy(out, next)
	return out
}
