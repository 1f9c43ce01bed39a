package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/civic-portal/internal/domain"
	"github.com/spec-kit/civic-portal/internal/events"
	"github.com/spec-kit/civic-portal/internal/realtime"
	"github.com/spec-kit/civic-portal/internal/repository"
)

// memStore is an in-memory stand-in for the postgres repositories behind one
// lock. Status events and comments draw from independent sequence counters,
// mirroring the schema's separate BIGSERIAL columns: seq orders rows within a
// kind only, cross-kind ties are broken by rank.
type memStore struct {
	mu            sync.Mutex
	eventSeq      int64
	commentSeq    int64
	issues        map[string]*domain.Issue
	statusEvents  []domain.StatusChangeEvent
	comments      map[string]*domain.Comment
	notifications []domain.Notification
	users         map[string]*domain.User

	// transitionErr, when set, is returned by TransitionStatus to simulate
	// storage-level failures such as a lost CAS race.
	transitionErr error
}

func newMemStore() *memStore {
	return &memStore{
		issues:   make(map[string]*domain.Issue),
		comments: make(map[string]*domain.Comment),
		users:    make(map[string]*domain.User),
	}
}

func (s *memStore) nextEventSeq() int64 {
	s.eventSeq++
	return s.eventSeq
}

func (s *memStore) nextCommentSeq() int64 {
	s.commentSeq++
	return s.commentSeq
}

func (s *memStore) addUser(user *domain.User) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return user
}

func (s *memStore) addIssue(issue *domain.Issue) *domain.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if issue.ID == "" {
		issue.ID = fmt.Sprintf("issue-%d", len(s.issues)+1)
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now()
	}
	s.issues[issue.ID] = issue
	return issue
}

func (s *memStore) eventsForIssue(issueID string) []domain.StatusChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StatusChangeEvent
	for _, event := range s.statusEvents {
		if event.IssueID == issueID {
			out = append(out, event)
		}
	}
	return out
}

// --- IssueRepository ---

type memIssues struct{ store *memStore }

func (m *memIssues) Create(ctx context.Context, issue *domain.Issue) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	issue.ID = fmt.Sprintf("issue-%d", len(m.store.issues)+1)
	issue.CreatedAt = time.Now()
	issue.UpdatedAt = issue.CreatedAt
	copied := *issue
	m.store.issues[issue.ID] = &copied
	return nil
}

func (m *memIssues) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	issue, ok := m.store.issues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *issue
	return &copied, nil
}

func (m *memIssues) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Issue, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, issue := range m.store.issues {
		if issue.TrackingNumber == trackingNumber {
			copied := *issue
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memIssues) ListWithFilter(ctx context.Context, filter repository.IssueFilter) ([]domain.Issue, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []domain.Issue
	for _, issue := range m.store.issues {
		if filter.SubmittedBy != nil && issue.SubmittedBy != *filter.SubmittedBy {
			continue
		}
		if filter.ScopeActorID != nil || filter.ScopeDepartment != nil {
			matched := false
			if filter.ScopeActorID != nil && issue.AssignedTo != nil && *issue.AssignedTo == *filter.ScopeActorID {
				matched = true
			}
			if filter.ScopeDepartment != nil && issue.Department != nil && *issue.Department == *filter.ScopeDepartment {
				matched = true
			}
			if !matched {
				continue
			}
		}
		out = append(out, *issue)
	}
	return out, nil
}

func (m *memIssues) TransitionStatus(ctx context.Context, issueID string, from, to domain.IssueStatus, event *domain.StatusChangeEvent) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.store.transitionErr != nil {
		return m.store.transitionErr
	}
	issue, ok := m.store.issues[issueID]
	if !ok {
		return pgx.ErrNoRows
	}
	if issue.Status != from {
		return repository.ErrStatusConflict
	}
	issue.Status = to
	issue.UpdatedAt = time.Now()

	event.ID = fmt.Sprintf("sce-%d", len(m.store.statusEvents)+1)
	event.IssueID = issueID
	event.FromStatus = from
	event.ToStatus = to
	event.Seq = m.store.nextEventSeq()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	m.store.statusEvents = append(m.store.statusEvents, *event)
	return nil
}

func (m *memIssues) UpdateAssignee(ctx context.Context, issueID string, assigneeID *string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	issue, ok := m.store.issues[issueID]
	if !ok {
		return pgx.ErrNoRows
	}
	issue.AssignedTo = assigneeID
	return nil
}

func (m *memIssues) UpdatePriority(ctx context.Context, issueID string, priority domain.IssuePriority) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	issue, ok := m.store.issues[issueID]
	if !ok {
		return pgx.ErrNoRows
	}
	issue.Priority = priority
	return nil
}

// --- CommentRepository ---

type memComments struct{ store *memStore }

func (m *memComments) Create(ctx context.Context, comment *domain.Comment) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	comment.ID = fmt.Sprintf("comment-%d", len(m.store.comments)+1)
	comment.Seq = m.store.nextCommentSeq()
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	copied := *comment
	m.store.comments[comment.ID] = &copied
	return nil
}

func (m *memComments) GetByID(ctx context.Context, id string) (*domain.Comment, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	comment, ok := m.store.comments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *comment
	return &copied, nil
}

func (m *memComments) SoftDelete(ctx context.Context, id string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	comment, ok := m.store.comments[id]
	if !ok || comment.DeletedAt != nil {
		return pgx.ErrNoRows
	}
	now := time.Now()
	comment.DeletedAt = &now
	return nil
}

func (m *memComments) ListLiveByIssue(ctx context.Context, issueID string) ([]domain.Comment, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []domain.Comment
	for _, comment := range m.store.comments {
		if comment.IssueID == issueID && comment.DeletedAt == nil {
			out = append(out, *comment)
		}
	}
	return out, nil
}

// --- StatusEventRepository ---

type memStatusEvents struct{ store *memStore }

func (m *memStatusEvents) ListByIssue(ctx context.Context, issueID string) ([]domain.StatusChangeEvent, error) {
	return m.store.eventsForIssue(issueID), nil
}

// --- NotificationRepository ---

type memNotifications struct{ store *memStore }

func (m *memNotifications) Create(ctx context.Context, notification *domain.Notification) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	notification.ID = fmt.Sprintf("notif-%d", len(m.store.notifications)+1)
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}
	m.store.notifications = append(m.store.notifications, *notification)
	return nil
}

func (m *memNotifications) ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []domain.Notification
	for _, notification := range m.store.notifications {
		if notification.RecipientID != recipientID {
			continue
		}
		if unreadOnly && notification.IsRead {
			continue
		}
		out = append(out, notification)
	}
	return out, nil
}

func (m *memNotifications) MarkRead(ctx context.Context, recipientID, id string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for i := range m.store.notifications {
		if m.store.notifications[i].ID == id && m.store.notifications[i].RecipientID == recipientID {
			m.store.notifications[i].IsRead = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memNotifications) MarkAllRead(ctx context.Context, recipientID string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for i := range m.store.notifications {
		if m.store.notifications[i].RecipientID == recipientID {
			m.store.notifications[i].IsRead = true
		}
	}
	return nil
}

// --- UserRepository ---

type memUsers struct{ store *memStore }

func (m *memUsers) Create(ctx context.Context, user *domain.User) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", len(m.store.users)+1)
	}
	copied := *user
	m.store.users[user.ID] = &copied
	return nil
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	user, ok := m.store.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, user := range m.store.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memUsers) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []domain.User
	for _, user := range m.store.users {
		out = append(out, *user)
	}
	return out, nil
}

func (m *memUsers) UpdateRole(ctx context.Context, id string, role domain.Role, isActive bool) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	user, ok := m.store.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.Role = role
	user.IsActive = isActive
	return nil
}

// --- event dispatcher recorder ---

// recorderDispatcher records every published event and forwards to any
// registered handlers, synchronously like the real in-memory dispatcher.
type recorderDispatcher struct {
	mu        sync.Mutex
	published []events.Event
	listeners map[events.EventType][]events.EventHandler
}

func newRecorderDispatcher() *recorderDispatcher {
	return &recorderDispatcher{listeners: make(map[events.EventType][]events.EventHandler)}
}

func (d *recorderDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	d.published = append(d.published, event)
	handlers := append([]events.EventHandler{}, d.listeners[event.Type]...)
	d.mu.Unlock()
	for _, handler := range handlers {
		_ = handler(ctx, event)
	}
	return nil
}

func (d *recorderDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

func (d *recorderDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, event := range d.published {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// --- broadcaster recorder ---

type pushedMessage struct {
	Channel string
	Message realtime.Message
}

type recorderBroadcaster struct {
	mu     sync.Mutex
	pushes []pushedMessage
}

func (b *recorderBroadcaster) Push(channel string, msg realtime.Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pushes = append(b.pushes, pushedMessage{Channel: channel, Message: msg})
	return 1
}

func (b *recorderBroadcaster) toChannel(channel string) []realtime.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []realtime.Message
	for _, push := range b.pushes {
		if push.Channel == channel {
			out = append(out, push.Message)
		}
	}
	return out
}

type staticSubscribers struct {
	byChannel map[string][]string
}

func (s *staticSubscribers) Subscribers(channel string) []string {
	return s.byChannel[channel]
}

// --- common fixtures ---

func strptr(s string) *string { return &s }

func activeUser(id string, role domain.Role, department *string) *domain.User {
	return &domain.User{ID: id, Name: id, Role: role, Department: department, IsActive: true}
}
