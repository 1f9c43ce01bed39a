package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-portal/internal/domain"
	"github.com/spec-kit/civic-portal/internal/events"
	"github.com/spec-kit/civic-portal/internal/realtime"
	"github.com/spec-kit/civic-portal/internal/repository"
	apperrors "github.com/spec-kit/civic-portal/pkg/util/errorutil"
)

// subscriberSource resolves which users are currently subscribed to a
// broadcast channel. Satisfied by *realtime.Registry.
type subscriberSource interface {
	Subscribers(channel string) []string
}

// NotificationService is the fan-out: it consumes domain events, persists a
// Notification per recipient, then attempts best-effort realtime delivery.
// A failed push never propagates to the operation that emitted the event.
type NotificationService struct {
	notifications repository.NotificationRepository
	issues        repository.IssueRepository
	dispatcher    events.Dispatcher
	broadcaster   realtime.Broadcaster
	subscribers   subscriberSource
	logger        *zap.Logger
}

// NotificationDependencies bundles collaborators for the fan-out.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	IssueRepo        repository.IssueRepository
	Dispatcher       events.Dispatcher
	Broadcaster      realtime.Broadcaster
	Subscribers      subscriberSource
	Logger           *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	return &NotificationService{
		notifications: deps.NotificationRepo,
		issues:        deps.IssueRepo,
		dispatcher:    deps.Dispatcher,
		broadcaster:   deps.Broadcaster,
		subscribers:   deps.Subscribers,
		logger:        deps.Logger,
	}
}

// RegisterHandlers subscribes to the domain event stream.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventIssueAssigned, n.handleIssueAssigned)
	n.dispatcher.Subscribe(events.EventCommentAdded, n.handleCommentAdded)
	n.dispatcher.Subscribe(events.EventIssueCreated, n.handleIssueCreated)
	n.dispatcher.Subscribe(events.EventBulkCompleted, n.handleBulkCompleted)
}

// ListNotifications returns the recipient's notifications, newest first.
func (n *NotificationService) ListNotifications(ctx context.Context, recipient *domain.User, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	if recipient == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	list, err := n.notifications.ListByRecipient(ctx, recipient.ID, unreadOnly, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// MarkRead marks one of the recipient's notifications as read.
func (n *NotificationService) MarkRead(ctx context.Context, recipient *domain.User, notificationID string) error {
	if recipient == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := n.notifications.MarkRead(ctx, recipient.ID, notificationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("notification", map[string]any{"notification_id": notificationID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// MarkAllRead clears the recipient's unread notifications.
func (n *NotificationService) MarkAllRead(ctx context.Context, recipient *domain.User) error {
	if recipient == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	return apperrors.MapError(n.notifications.MarkAllRead(ctx, recipient.ID))
}

func (n *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.StatusChangedPayload)
	if !ok {
		n.logger.Warn("unexpected status_changed payload", zap.String("event_id", event.ID))
		return nil
	}
	issue, err := n.issues.GetByID(ctx, event.IssueID)
	if err != nil {
		return fmt.Errorf("load issue for fan-out: %w", err)
	}

	recipients := issueParticipants(issue, "")
	body := map[string]any{
		"event_id":        event.ID,
		"issue_id":        issue.ID,
		"tracking_number": issue.TrackingNumber,
		"from_status":     payload.FromStatus,
		"to_status":       payload.ToStatus,
	}
	n.deliver(ctx, event, domain.NotificationStatusChanged, recipients, body,
		fmt.Sprintf("status updated to %s", payload.ToStatus))
	n.pushIssueChannel(issue.ID, event, fmt.Sprintf("status updated to %s", payload.ToStatus), body)
	return nil
}

func (n *NotificationService) handleIssueAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IssueAssignedPayload)
	if !ok {
		n.logger.Warn("unexpected issue_assigned payload", zap.String("event_id", event.ID))
		return nil
	}
	body := map[string]any{
		"event_id": event.ID,
		"issue_id": event.IssueID,
	}
	n.deliver(ctx, event, domain.NotificationIssueAssigned, []string{payload.AssigneeID}, body, "new issue assigned")
	n.pushIssueChannel(event.IssueID, event, "new issue assigned", body)
	return nil
}

func (n *NotificationService) handleCommentAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CommentAddedPayload)
	if !ok {
		n.logger.Warn("unexpected comment_added payload", zap.String("event_id", event.ID))
		return nil
	}
	issue, err := n.issues.GetByID(ctx, event.IssueID)
	if err != nil {
		return fmt.Errorf("load issue for fan-out: %w", err)
	}

	recipients := issueParticipants(issue, payload.AuthorID)
	body := map[string]any{
		"event_id":   event.ID,
		"issue_id":   issue.ID,
		"comment_id": payload.CommentID,
		"preview":    payload.TextPreview,
	}
	n.deliver(ctx, event, domain.NotificationCommentAdded, recipients, body, "new comment")
	n.pushIssueChannel(issue.ID, event, "new comment", body)
	return nil
}

func (n *NotificationService) handleIssueCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IssueCreatedPayload)
	if !ok {
		n.logger.Warn("unexpected issue_created payload", zap.String("event_id", event.ID))
		return nil
	}
	body := map[string]any{
		"event_id":        event.ID,
		"issue_id":        event.IssueID,
		"tracking_number": payload.TrackingNumber,
		"category":        payload.Category,
		"priority":        payload.Priority,
	}

	// Recipients are whoever is watching the admin dashboard right now.
	recipients := n.subscribers.Subscribers(realtime.ChannelAdminDashboard)
	for _, recipientID := range recipients {
		n.persist(ctx, recipientID, domain.NotificationIssueCreated, body)
	}
	n.broadcaster.Push(realtime.ChannelAdminDashboard, realtime.Message{
		EventID: event.ID,
		Kind:    string(domain.NotificationIssueCreated),
		IssueID: event.IssueID,
		Text:    "new issue reported",
		Payload: body,
	})
	return nil
}

func (n *NotificationService) handleBulkCompleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.BulkCompletedPayload)
	if !ok {
		n.logger.Warn("unexpected bulk_completed payload", zap.String("event_id", event.ID))
		return nil
	}
	body := map[string]any{
		"event_id":  event.ID,
		"succeeded": payload.Succeeded,
		"failed":    payload.Failed,
	}
	n.deliver(ctx, event, domain.NotificationBulkCompleted, []string{event.ActorID}, body, "bulk operation completed")
	return nil
}

// deliver persists a notification per recipient, then pushes to each
// recipient's user channel. Persistence failures are logged per recipient and
// do not stop the remaining deliveries.
func (n *NotificationService) deliver(ctx context.Context, event events.Event, kind domain.NotificationType, recipients []string, body map[string]any, text string) {
	for _, recipientID := range recipients {
		n.persist(ctx, recipientID, kind, body)
		n.broadcaster.Push(realtime.UserChannel(recipientID), realtime.Message{
			EventID: event.ID,
			Kind:    string(kind),
			IssueID: event.IssueID,
			Text:    text,
			Payload: body,
		})
	}
}

func (n *NotificationService) persist(ctx context.Context, recipientID string, kind domain.NotificationType, body map[string]any) {
	notification := &domain.Notification{
		RecipientID: recipientID,
		Type:        kind,
		Payload:     body,
	}
	if err := n.notifications.Create(ctx, notification); err != nil {
		n.logger.Warn("persist notification",
			zap.String("recipient_id", recipientID),
			zap.String("type", string(kind)),
			zap.Error(err))
	}
}

func (n *NotificationService) pushIssueChannel(issueID string, event events.Event, text string, body map[string]any) {
	n.broadcaster.Push(realtime.IssueChannel(issueID), realtime.Message{
		EventID: event.ID,
		Kind:    string(event.Type),
		IssueID: issueID,
		Text:    text,
		Payload: body,
	})
}

// issueParticipants returns the submitter and assignee, deduplicated,
// excluding the given actor id (empty string excludes nobody).
func issueParticipants(issue *domain.Issue, exclude string) []string {
	recipients := []string{}
	if issue.SubmittedBy != "" && issue.SubmittedBy != exclude {
		recipients = append(recipients, issue.SubmittedBy)
	}
	if issue.AssignedTo != nil && *issue.AssignedTo != exclude && *issue.AssignedTo != issue.SubmittedBy {
		recipients = append(recipients, *issue.AssignedTo)
	}
	return recipients
}
