package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/civic-portal/internal/domain"
	"github.com/spec-kit/civic-portal/internal/events"
	"github.com/spec-kit/civic-portal/internal/observability"
	apperrors "github.com/spec-kit/civic-portal/pkg/util/errorutil"
)

// BulkUpdates describes the per-issue changes a bulk operation applies.
type BulkUpdates struct {
	Status   *domain.IssueStatus
	Priority *domain.IssuePriority
}

// BulkFailure records why one issue in a batch was not updated.
type BulkFailure struct {
	IssueID string `json:"issue_id"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
}

// BulkResult is the full accounting of a bulk operation.
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// BulkService applies a status/priority update to a set of issues. Each issue
// is attempted independently: a failure is recorded and processing continues,
// so one bad id never blocks the rest. The batch itself is not atomic.
type BulkService struct {
	issueService *IssueService
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
}

// NewBulkService constructs the service.
func NewBulkService(issueService *IssueService, dispatcher events.Dispatcher, metrics *observability.Metrics) *BulkService {
	return &BulkService{
		issueService: issueService,
		dispatcher:   dispatcher,
		metrics:      metrics,
	}
}

// BulkUpdate runs the updates over every id and returns only after all have
// been attempted. Status changes go through the state machine; priority
// changes bypass the graph but not authorization. If at least one issue
// succeeded, a single bulk_completed event is emitted for the whole batch.
func (s *BulkService) BulkUpdate(ctx context.Context, actor *domain.User, issueIDs []string, updates BulkUpdates) (*BulkResult, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if updates.Status == nil && updates.Priority == nil {
		return nil, apperrors.NewValidationError("at least one of status or priority is required", nil)
	}
	if len(issueIDs) == 0 {
		return nil, apperrors.NewValidationError("issue ids required", nil)
	}

	result := &BulkResult{
		Succeeded: []string{},
		Failed:    []BulkFailure{},
	}

	for _, issueID := range issueIDs {
		if err := s.applyOne(ctx, actor, issueID, updates); err != nil {
			domainErr := apperrors.ToDomainError(err)
			result.Failed = append(result.Failed, BulkFailure{
				IssueID: issueID,
				Code:    domainErr.Code,
				Reason:  domainErr.Message,
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, issueID)
	}

	if len(result.Succeeded) > 0 {
		s.publishCompleted(ctx, actor.ID, result)
	}
	return result, nil
}

func (s *BulkService) applyOne(ctx context.Context, actor *domain.User, issueID string, updates BulkUpdates) error {
	if updates.Status != nil {
		if _, err := s.issueService.Transition(ctx, actor, issueID, *updates.Status, nil); err != nil {
			return err
		}
	}
	if updates.Priority != nil {
		if _, err := s.issueService.SetPriority(ctx, actor, issueID, *updates.Priority); err != nil {
			return err
		}
	}
	return nil
}

func (s *BulkService) publishCompleted(ctx context.Context, actorID string, result *BulkResult) {
	if s.dispatcher == nil {
		return
	}
	s.metrics.RecordEvent(string(events.EventBulkCompleted))
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventBulkCompleted,
		ActorID:   actorID,
		Timestamp: time.Now(),
		Payload: events.BulkCompletedPayload{
			Succeeded: len(result.Succeeded),
			Failed:    len(result.Failed),
		},
	})
}
