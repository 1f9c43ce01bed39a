package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-portal/internal/domain"
	"github.com/spec-kit/civic-portal/internal/events"
	"github.com/spec-kit/civic-portal/internal/realtime"
	apperrors "github.com/spec-kit/civic-portal/pkg/util/errorutil"
)

type fanoutFixture struct {
	store       *memStore
	dispatcher  *recorderDispatcher
	broadcaster *recorderBroadcaster
	subscribers *staticSubscribers
	service     *NotificationService
}

func newFanoutFixture() *fanoutFixture {
	store := newMemStore()
	dispatcher := newRecorderDispatcher()
	broadcaster := &recorderBroadcaster{}
	subscribers := &staticSubscribers{byChannel: map[string][]string{}}
	svc := NewNotificationService(NotificationDependencies{
		NotificationRepo: &memNotifications{store: store},
		IssueRepo:        &memIssues{store: store},
		Dispatcher:       dispatcher,
		Broadcaster:      broadcaster,
		Subscribers:      subscribers,
		Logger:           zap.NewNop(),
	})
	svc.RegisterHandlers()
	return &fanoutFixture{
		store:       store,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		subscribers: subscribers,
		service:     svc,
	}
}

func (f *fanoutFixture) notificationsFor(t *testing.T, userID string) []domain.Notification {
	t.Helper()
	list, err := f.service.ListNotifications(context.Background(), activeUser(userID, domain.RoleCitizen, nil), false, 0, 0)
	require.NoError(t, err)
	return list
}

func TestFanout_StatusChanged(t *testing.T) {
	f := newFanoutFixture()
	issue := f.store.addIssue(&domain.Issue{
		Status:      domain.IssueStatusInProgress,
		SubmittedBy: "citizen-1",
		AssignedTo:  strptr("staff-1"),
	})

	event := events.Event{
		ID:      "evt-1",
		Type:    events.EventStatusChanged,
		IssueID: issue.ID,
		ActorID: "staff-1",
		Payload: events.StatusChangedPayload{
			FromStatus: domain.IssueStatusOpen,
			ToStatus:   domain.IssueStatusInProgress,
		},
	}
	require.NoError(t, f.dispatcher.Publish(context.Background(), event))

	// Submitter and assignee both get a persisted notification.
	for _, userID := range []string{"citizen-1", "staff-1"} {
		notifs := f.notificationsFor(t, userID)
		require.Len(t, notifs, 1, "recipient %s", userID)
		assert.Equal(t, domain.NotificationStatusChanged, notifs[0].Type)
		assert.Equal(t, "evt-1", notifs[0].Payload["event_id"])

		pushed := f.broadcaster.toChannel(realtime.UserChannel(userID))
		require.Len(t, pushed, 1)
		assert.Equal(t, "evt-1", pushed[0].EventID)
	}

	// Issue watchers get a channel broadcast as well.
	issuePushes := f.broadcaster.toChannel(realtime.IssueChannel(issue.ID))
	require.Len(t, issuePushes, 1)
	assert.Equal(t, "status updated to In Progress", issuePushes[0].Text)
}

func TestFanout_StatusChanged_NoAssignee(t *testing.T) {
	f := newFanoutFixture()
	issue := f.store.addIssue(&domain.Issue{Status: domain.IssueStatusInProgress, SubmittedBy: "citizen-1"})

	require.NoError(t, f.dispatcher.Publish(context.Background(), events.Event{
		ID:      "evt-1",
		Type:    events.EventStatusChanged,
		IssueID: issue.ID,
		Payload: events.StatusChangedPayload{FromStatus: domain.IssueStatusOpen, ToStatus: domain.IssueStatusInProgress},
	}))

	assert.Len(t, f.notificationsFor(t, "citizen-1"), 1)
	assert.Empty(t, f.broadcaster.toChannel(realtime.UserChannel("staff-1")))
}

func TestFanout_IssueAssigned(t *testing.T) {
	f := newFanoutFixture()
	issue := f.store.addIssue(&domain.Issue{Status: domain.IssueStatusOpen, SubmittedBy: "citizen-1"})

	require.NoError(t, f.dispatcher.Publish(context.Background(), events.Event{
		ID:      "evt-2",
		Type:    events.EventIssueAssigned,
		IssueID: issue.ID,
		ActorID: "admin-1",
		Payload: events.IssueAssignedPayload{AssigneeID: "staff-1"},
	}))

	notifs := f.notificationsFor(t, "staff-1")
	require.Len(t, notifs, 1)
	assert.Equal(t, domain.NotificationIssueAssigned, notifs[0].Type)

	// Only the assignee is notified, not the submitter.
	assert.Empty(t, f.notificationsFor(t, "citizen-1"))
}

func TestFanout_CommentAdded_ExcludesAuthor(t *testing.T) {
	f := newFanoutFixture()
	issue := f.store.addIssue(&domain.Issue{
		Status:      domain.IssueStatusInProgress,
		SubmittedBy: "citizen-1",
		AssignedTo:  strptr("staff-1"),
	})

	require.NoError(t, f.dispatcher.Publish(context.Background(), events.Event{
		ID:      "evt-3",
		Type:    events.EventCommentAdded,
		IssueID: issue.ID,
		ActorID: "staff-1",
		Payload: events.CommentAddedPayload{CommentID: "c1", AuthorID: "staff-1", TextPreview: "on it"},
	}))

	assert.Len(t, f.notificationsFor(t, "citizen-1"), 1)
	assert.Empty(t, f.notificationsFor(t, "staff-1"), "the commenter is not notified of their own comment")
}

func TestFanout_CommentAdded_SubmitterCommenting(t *testing.T) {
	f := newFanoutFixture()
	issue := f.store.addIssue(&domain.Issue{
		Status:      domain.IssueStatusInProgress,
		SubmittedBy: "citizen-1",
		AssignedTo:  strptr("staff-1"),
	})

	require.NoError(t, f.dispatcher.Publish(context.Background(), events.Event{
		ID:      "evt-4",
		Type:    events.EventCommentAdded,
		IssueID: issue.ID,
		ActorID: "citizen-1",
		Payload: events.CommentAddedPayload{CommentID: "c2", AuthorID: "citizen-1", TextPreview: "any update?"},
	}))

	assert.Empty(t, f.notificationsFor(t, "citizen-1"))
	assert.Len(t, f.notificationsFor(t, "staff-1"), 1)
}

func TestFanout_IssueCreated_AdminDashboardSubscribers(t *testing.T) {
	f := newFanoutFixture()
	f.subscribers.byChannel[realtime.ChannelAdminDashboard] = []string{"admin-1", "admin-2"}
	issue := f.store.addIssue(&domain.Issue{Status: domain.IssueStatusOpen, SubmittedBy: "citizen-1"})

	require.NoError(t, f.dispatcher.Publish(context.Background(), events.Event{
		ID:      "evt-5",
		Type:    events.EventIssueCreated,
		IssueID: issue.ID,
		ActorID: "citizen-1",
		Payload: events.IssueCreatedPayload{TrackingNumber: "CIV-ABCD1234", Category: "Roads", Priority: domain.IssuePriorityMedium},
	}))

	// Each connected subscriber gets a persisted notification; the submitter
	// does not.
	assert.Len(t, f.notificationsFor(t, "admin-1"), 1)
	assert.Len(t, f.notificationsFor(t, "admin-2"), 1)
	assert.Empty(t, f.notificationsFor(t, "citizen-1"))

	// One broadcast on the dashboard channel serves every connection.
	pushes := f.broadcaster.toChannel(realtime.ChannelAdminDashboard)
	require.Len(t, pushes, 1)
	assert.Equal(t, "evt-5", pushes[0].EventID)
	assert.Equal(t, "new issue reported", pushes[0].Text)
}

func TestFanout_IssueCreated_NoSubscribers(t *testing.T) {
	f := newFanoutFixture()
	issue := f.store.addIssue(&domain.Issue{Status: domain.IssueStatusOpen, SubmittedBy: "citizen-1"})

	require.NoError(t, f.dispatcher.Publish(context.Background(), events.Event{
		ID:      "evt-6",
		Type:    events.EventIssueCreated,
		IssueID: issue.ID,
		Payload: events.IssueCreatedPayload{TrackingNumber: "CIV-00000000"},
	}))

	assert.Empty(t, f.store.notifications)
	assert.Len(t, f.broadcaster.toChannel(realtime.ChannelAdminDashboard), 1)
}

func TestFanout_BulkCompleted_ActorOnly(t *testing.T) {
	f := newFanoutFixture()

	require.NoError(t, f.dispatcher.Publish(context.Background(), events.Event{
		ID:      "evt-7",
		Type:    events.EventBulkCompleted,
		ActorID: "admin-1",
		Payload: events.BulkCompletedPayload{Succeeded: 3, Failed: 1},
	}))

	notifs := f.notificationsFor(t, "admin-1")
	require.Len(t, notifs, 1)
	assert.Equal(t, domain.NotificationBulkCompleted, notifs[0].Type)
	assert.Equal(t, 3, notifs[0].Payload["succeeded"])
	assert.Equal(t, 1, notifs[0].Payload["failed"])
}

func TestFanout_MismatchedPayloadIgnored(t *testing.T) {
	f := newFanoutFixture()
	issue := f.store.addIssue(&domain.Issue{Status: domain.IssueStatusOpen, SubmittedBy: "citizen-1"})

	require.NoError(t, f.dispatcher.Publish(context.Background(), events.Event{
		ID:      "evt-8",
		Type:    events.EventStatusChanged,
		IssueID: issue.ID,
		Payload: "not a status payload",
	}))

	assert.Empty(t, f.store.notifications)
	assert.Empty(t, f.broadcaster.pushes)
}

func TestNotificationReadFlow(t *testing.T) {
	f := newFanoutFixture()
	recipient := activeUser("citizen-1", domain.RoleCitizen, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, (&memNotifications{store: f.store}).Create(context.Background(), &domain.Notification{
			RecipientID: recipient.ID,
			Type:        domain.NotificationStatusChanged,
		}))
	}

	unread, err := f.service.ListNotifications(context.Background(), recipient, true, 0, 0)
	require.NoError(t, err)
	require.Len(t, unread, 3)

	require.NoError(t, f.service.MarkRead(context.Background(), recipient, unread[0].ID))
	unread, err = f.service.ListNotifications(context.Background(), recipient, true, 0, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	// A recipient cannot mark someone else's notification.
	err = f.service.MarkRead(context.Background(), activeUser("citizen-2", domain.RoleCitizen, nil), unread[0].ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	require.NoError(t, f.service.MarkAllRead(context.Background(), recipient))
	unread, err = f.service.ListNotifications(context.Background(), recipient, true, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)

	all, err := f.service.ListNotifications(context.Background(), recipient, false, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
