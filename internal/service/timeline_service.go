package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spec-kit/civic-portal/internal/authz"
	"github.com/spec-kit/civic-portal/internal/domain"
	"github.com/spec-kit/civic-portal/internal/repository"
	apperrors "github.com/spec-kit/civic-portal/pkg/util/errorutil"
)

// TimelineEntryKind tags the union of timeline entries.
type TimelineEntryKind string

const (
	TimelineStatusChange TimelineEntryKind = "status_change"
	TimelineComment      TimelineEntryKind = "comment"
)

// TimelineEntry is one row of the merged audit view of an issue.
type TimelineEntry struct {
	Kind        TimelineEntryKind
	ActorID     string
	CreatedAt   time.Time
	Description string

	// Status change fields.
	FromStatus domain.IssueStatus
	ToStatus   domain.IssueStatus
	Reason     *string

	// Comment fields. CanDelete is true only for the viewer's own live comments.
	CommentID string
	Text      string
	CanDelete bool
}

// TimelineService merges status change events and live comments into one
// ordered audit view. Each call recomputes from durable state, so repeated
// calls reflect the latest tombstones.
type TimelineService struct {
	issues       repository.IssueRepository
	statusEvents repository.StatusEventRepository
	comments     repository.CommentRepository
}

// NewTimelineService constructs the service.
func NewTimelineService(issues repository.IssueRepository, statusEvents repository.StatusEventRepository, comments repository.CommentRepository) *TimelineService {
	return &TimelineService{
		issues:       issues,
		statusEvents: statusEvents,
		comments:     comments,
	}
}

// GetTimeline returns the issue's merged history ordered by creation time
// ascending. On equal timestamps status changes sort before comments, since
// they are typically the triggering cause; remaining ties fall back to
// insertion order.
func (s *TimelineService) GetTimeline(ctx context.Context, viewer *domain.User, issueID string) ([]TimelineEntry, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !authz.CanViewIssue(viewer, issue) {
		return nil, apperrors.NewForbidden("access denied")
	}

	statusEvents, err := s.statusEvents.ListByIssue(ctx, issue.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	comments, err := s.comments.ListLiveByIssue(ctx, issue.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	type keyed struct {
		entry TimelineEntry
		rank  int // status changes before comments on equal timestamps
		seq   int64
	}

	merged := make([]keyed, 0, len(statusEvents)+len(comments))
	for _, event := range statusEvents {
		merged = append(merged, keyed{
			entry: TimelineEntry{
				Kind:        TimelineStatusChange,
				ActorID:     event.PerformedBy,
				CreatedAt:   event.CreatedAt,
				Description: fmt.Sprintf("status changed from %s to %s", event.FromStatus, event.ToStatus),
				FromStatus:  event.FromStatus,
				ToStatus:    event.ToStatus,
				Reason:      event.Reason,
			},
			rank: 0,
			seq:  event.Seq,
		})
	}
	for _, comment := range comments {
		merged = append(merged, keyed{
			entry: TimelineEntry{
				Kind:        TimelineComment,
				ActorID:     comment.AuthorID,
				CreatedAt:   comment.CreatedAt,
				Description: "commented",
				CommentID:   comment.ID,
				Text:        comment.Text,
				CanDelete:   viewer != nil && comment.AuthorID == viewer.ID,
			},
			rank: 1,
			seq:  comment.Seq,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].entry.CreatedAt.Equal(merged[j].entry.CreatedAt) {
			return merged[i].entry.CreatedAt.Before(merged[j].entry.CreatedAt)
		}
		if merged[i].rank != merged[j].rank {
			return merged[i].rank < merged[j].rank
		}
		return merged[i].seq < merged[j].seq
	})

	entries := make([]TimelineEntry, len(merged))
	for i, item := range merged {
		entries[i] = item.entry
	}
	return entries, nil
}
