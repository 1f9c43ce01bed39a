package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/civic-portal/internal/authz"
	"github.com/spec-kit/civic-portal/internal/domain"
	"github.com/spec-kit/civic-portal/internal/events"
	"github.com/spec-kit/civic-portal/internal/observability"
	"github.com/spec-kit/civic-portal/internal/repository"
	apperrors "github.com/spec-kit/civic-portal/pkg/util/errorutil"
)

// IssueService is the issue lifecycle state machine. Every status mutation in
// the system goes through Transition; the initial Open status is set only by
// CreateIssue and is never reachable through a direct status write.
type IssueService struct {
	issues     repository.IssueRepository
	comments   repository.CommentRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
}

// IssueDependencies bundles collaborators for the issue service.
type IssueDependencies struct {
	IssueRepo   repository.IssueRepository
	CommentRepo repository.CommentRepository
	UserRepo    repository.UserRepository
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
}

// IssueCreateInput describes issue submission payload.
type IssueCreateInput struct {
	Title       string
	Description string
	Category    string
	Priority    domain.IssuePriority
	Department  *string
}

// IssueListFilter describes listing filters before visibility scoping.
type IssueListFilter struct {
	Statuses    []domain.IssueStatus
	Priorities  []domain.IssuePriority
	Category    *string
	SearchTerm  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// NewIssueService constructs the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	return &IssueService{
		issues:     deps.IssueRepo,
		comments:   deps.CommentRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
	}
}

// CreateIssue registers a new issue with status Open and a fresh tracking number.
func (s *IssueService) CreateIssue(ctx context.Context, actor *domain.User, input IssueCreateInput) (*domain.Issue, error) {
	if actor == nil || !actor.IsActive {
		return nil, apperrors.NewUnauthorized("active user required")
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	category := strings.TrimSpace(input.Category)
	if title == "" || description == "" || category == "" {
		return nil, apperrors.NewValidationError("title, description and category are required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.IssuePriorityMedium
	}
	if !domain.ValidPriority(priority) {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	issue := &domain.Issue{
		TrackingNumber: generateTrackingNumber(),
		Title:          title,
		Description:    description,
		Category:       category,
		Status:         domain.IssueStatusOpen,
		Priority:       priority,
		SubmittedBy:    actor.ID,
		Department:     input.Department,
	}
	if err := s.issues.Create(ctx, issue); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueCreated,
		IssueID: issue.ID,
		ActorID: actor.ID,
		Payload: events.IssueCreatedPayload{
			TrackingNumber: issue.TrackingNumber,
			Title:          issue.Title,
			Category:       issue.Category,
			Priority:       issue.Priority,
			SubmittedBy:    issue.SubmittedBy,
			Department:     issue.Department,
		},
	})
	return issue, nil
}

// Transition moves the issue to the target status. Calling with the current
// status is an idempotent no-op: success, no event. The status update and the
// audit event are written in one transaction; a concurrent transition that
// wins the race surfaces as a conflict which the caller may retry.
func (s *IssueService) Transition(ctx context.Context, actor *domain.User, issueID string, target domain.IssueStatus, reason *string) (*domain.Issue, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !domain.ValidStatus(target) {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": target})
	}

	issue, err := s.getIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	// Actor scoping comes before edge validation: unauthorized callers get a
	// forbidden error for every target, never a hint about the graph.
	if !authz.CanWorkIssue(actor, issue) {
		return nil, apperrors.NewForbidden("not allowed to change this issue's status")
	}
	if issue.Status == target {
		return issue, nil
	}
	if !domain.CanTransitionTo(issue.Status, target) {
		return nil, apperrors.NewInvalidTransition(string(issue.Status), string(target))
	}

	event := &domain.StatusChangeEvent{
		PerformedBy: actor.ID,
		Reason:      reason,
	}
	if err := s.issues.TransitionStatus(ctx, issue.ID, issue.Status, target, event); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, apperrors.NewConflict("issue was modified concurrently", map[string]any{"issue_id": issue.ID})
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("issue", map[string]any{"issue_id": issueID})
		}
		return nil, apperrors.MapError(err)
	}
	from := issue.Status
	issue.Status = target

	s.publishEvent(ctx, events.Event{
		Type:    events.EventStatusChanged,
		IssueID: issue.ID,
		ActorID: actor.ID,
		Payload: events.StatusChangedPayload{
			FromStatus: from,
			ToStatus:   target,
			Reason:     reason,
		},
	})
	return issue, nil
}

// Assign changes the issue's assignee and notifies the new assignee.
func (s *IssueService) Assign(ctx context.Context, actor *domain.User, issueID, assigneeID string) (*domain.Issue, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	issue, err := s.getIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAssign(actor, issue) {
		return nil, apperrors.NewForbidden("not allowed to assign this issue")
	}

	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": assigneeID})
		}
		return nil, apperrors.MapError(err)
	}
	if !assignee.IsActive {
		return nil, apperrors.NewConflict("assignee inactive", map[string]any{"user_id": assigneeID})
	}
	if assignee.Role == domain.RoleCitizen {
		return nil, apperrors.NewValidationError("citizens cannot be assigned issues", map[string]any{"user_id": assigneeID})
	}

	previous := issue.AssignedTo
	if err := s.issues.UpdateAssignee(ctx, issue.ID, &assignee.ID); err != nil {
		return nil, apperrors.MapError(err)
	}
	issue.AssignedTo = &assignee.ID

	s.publishEvent(ctx, events.Event{
		Type:    events.EventIssueAssigned,
		IssueID: issue.ID,
		ActorID: actor.ID,
		Payload: events.IssueAssignedPayload{
			AssigneeID: assignee.ID,
			PreviousID: previous,
		},
	})
	return issue, nil
}

// SetPriority updates triage priority. Not subject to the lifecycle graph.
func (s *IssueService) SetPriority(ctx context.Context, actor *domain.User, issueID string, priority domain.IssuePriority) (*domain.Issue, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !domain.ValidPriority(priority) {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	issue, err := s.getIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if !authz.CanSetPriority(actor, issue) {
		return nil, apperrors.NewForbidden("not allowed to change this issue's priority")
	}
	if issue.Priority == priority {
		return issue, nil
	}
	if err := s.issues.UpdatePriority(ctx, issue.ID, priority); err != nil {
		return nil, apperrors.MapError(err)
	}
	issue.Priority = priority
	return issue, nil
}

// AddComment appends a comment to the issue's thread. Any active
// authenticated user may comment.
func (s *IssueService) AddComment(ctx context.Context, actor *domain.User, issueID, text string) (*domain.Comment, error) {
	if actor == nil || !actor.IsActive {
		return nil, apperrors.NewUnauthorized("active user required")
	}
	body := strings.TrimSpace(text)
	if body == "" {
		return nil, apperrors.NewValidationError("comment text required", nil)
	}
	issue, err := s.getIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}

	comment := &domain.Comment{
		IssueID:  issue.ID,
		AuthorID: actor.ID,
		Text:     body,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventCommentAdded,
		IssueID: issue.ID,
		ActorID: actor.ID,
		Payload: events.CommentAddedPayload{
			CommentID:   comment.ID,
			AuthorID:    comment.AuthorID,
			TextPreview: stringPreview(comment.Text, 120),
		},
	})
	return comment, nil
}

// DeleteComment tombstones a comment. Only the original author may delete;
// history events referencing the comment are not rewritten.
func (s *IssueService) DeleteComment(ctx context.Context, actor *domain.User, commentID string) error {
	if actor == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("comment", map[string]any{"comment_id": commentID})
		}
		return apperrors.MapError(err)
	}
	if comment.Deleted() {
		return apperrors.NewNotFound("comment", map[string]any{"comment_id": commentID})
	}
	if !authz.CanDeleteComment(actor, comment) {
		return apperrors.NewForbidden("only the author may delete a comment")
	}
	if err := s.comments.SoftDelete(ctx, comment.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("comment", map[string]any{"comment_id": commentID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// GetIssue fetches an issue, enforcing visibility.
func (s *IssueService) GetIssue(ctx context.Context, actor *domain.User, issueID string) (*domain.Issue, error) {
	issue, err := s.getIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if !authz.CanViewIssue(actor, issue) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return issue, nil
}

// ListIssues returns issues visible to the actor: citizens their own
// submissions, staff their assignments and department, admins everything.
func (s *IssueService) ListIssues(ctx context.Context, actor *domain.User, filter IssueListFilter) ([]domain.Issue, error) {
	if actor == nil || !actor.IsActive {
		return nil, apperrors.NewUnauthorized("active user required")
	}
	repoFilter := repository.IssueFilter{
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		Category:    filter.Category,
		SearchTerm:  filter.SearchTerm,
		CreatedFrom: filter.CreatedFrom,
		CreatedTo:   filter.CreatedTo,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	switch {
	case domain.IsAdmin(actor.Role):
		// unrestricted
	case domain.IsStaffRole(actor.Role):
		repoFilter.ScopeActorID = &actor.ID
		repoFilter.ScopeDepartment = actor.Department
	default:
		repoFilter.SubmittedBy = &actor.ID
	}
	issues, err := s.issues.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return issues, nil
}

func (s *IssueService) getIssue(ctx context.Context, issueID string) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("issue", map[string]any{"issue_id": issueID})
		}
		return nil, apperrors.MapError(err)
	}
	return issue, nil
}

func (s *IssueService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.metrics.RecordEvent(string(event.Type))
	_ = s.dispatcher.Publish(ctx, event)
}

func generateTrackingNumber() string {
	return "CIV-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
