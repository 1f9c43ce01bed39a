// Package realtime tracks which live connections are subscribed to which
// broadcast channels and delivers messages to them. Delivery is best-effort:
// a message to a channel with no subscribers, or to a subscriber whose send
// buffer is full, is dropped without affecting the triggering operation.
package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-portal/internal/observability"
)

// ChannelAdminDashboard is the broadcast group for admin dashboard clients.
const ChannelAdminDashboard = "admin-dashboard"

// UserChannel names the per-user channel.
func UserChannel(userID string) string { return "user:" + userID }

// IssueChannel names the per-issue channel for clients viewing that issue.
func IssueChannel(issueID string) string { return "issue:" + issueID }

// Message is the realtime payload pushed to subscribers. EventID carries the
// source domain event's identity so consumers can deduplicate redelivery.
type Message struct {
	EventID string `json:"event_id"`
	Kind    string `json:"kind"`
	IssueID string `json:"issue_id,omitempty"`
	Text    string `json:"text,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Broadcaster is the outbound push hook the notification fan-out binds to.
type Broadcaster interface {
	Push(channel string, msg Message) int
}

// Session is the registry's view of one live connection. The transport layer
// drains Send and stops when Done is closed.
type Session struct {
	ID     string
	UserID string
	send   chan Message
	done   chan struct{}
}

// Send returns the channel the transport drains for outbound messages.
func (s *Session) Send() <-chan Message { return s.send }

// Done is closed when the session is disconnected.
func (s *Session) Done() <-chan struct{} { return s.done }

// Registry is the shared, concurrency-safe map of live sessions and their
// channel subscriptions. Subscriptions are ephemeral; nothing here persists.
type Registry struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	metrics    *observability.Metrics
	bufferSize int
	sessions   map[string]*sessionState
	channels   map[string]map[string]struct{}
}

type sessionState struct {
	session  *Session
	channels map[string]struct{}
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *zap.Logger, metrics *observability.Metrics, bufferSize int) *Registry {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Registry{
		logger:     logger,
		metrics:    metrics,
		bufferSize: bufferSize,
		sessions:   make(map[string]*sessionState),
		channels:   make(map[string]map[string]struct{}),
	}
}

// Register adds a live connection and auto-joins its per-user channel.
func (r *Registry) Register(connID, userID string) *Session {
	session := &Session{
		ID:     connID,
		UserID: userID,
		send:   make(chan Message, r.bufferSize),
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.sessions[connID] = &sessionState{
		session:  session,
		channels: make(map[string]struct{}),
	}
	r.mu.Unlock()

	r.Join(connID, UserChannel(userID))
	return session
}

// Join subscribes the connection to a channel. Unknown connections are
// ignored: a disconnect may race an inbound join.
func (r *Registry) Join(connID, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[connID]
	if !ok {
		return
	}
	state.channels[channel] = struct{}{}
	subscribers, ok := r.channels[channel]
	if !ok {
		subscribers = make(map[string]struct{})
		r.channels[channel] = subscribers
	}
	subscribers[connID] = struct{}{}
}

// Leave unsubscribes the connection from a channel.
func (r *Registry) Leave(connID, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, channel)
}

func (r *Registry) leaveLocked(connID, channel string) {
	if state, ok := r.sessions[connID]; ok {
		delete(state.channels, channel)
	}
	if subscribers, ok := r.channels[channel]; ok {
		delete(subscribers, connID)
		if len(subscribers) == 0 {
			delete(r.channels, channel)
		}
	}
}

// Disconnect removes the connection and all of its subscriptions. Cleanup is
// mandatory on the transport's disconnect signal; liveness is never inferred.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.sessions[connID]
	if !ok {
		return
	}
	for channel := range state.channels {
		r.leaveLocked(connID, channel)
	}
	delete(r.sessions, connID)
	close(state.session.done)
}

// Push delivers the message to every connection subscribed to the channel and
// returns the delivered count. Sends never block: a full buffer drops the
// message for that connection with a warning.
func (r *Registry) Push(channel string, msg Message) int {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.channels[channel]))
	for connID := range r.channels[channel] {
		if state, ok := r.sessions[connID]; ok {
			targets = append(targets, state.session)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, session := range targets {
		select {
		case session.send <- msg:
			delivered++
			r.metrics.RecordPushDelivered()
		default:
			r.metrics.RecordPushDropped()
			r.logger.Warn("realtime send buffer full; dropping message",
				zap.String("conn_id", session.ID),
				zap.String("channel", channel),
				zap.String("event_id", msg.EventID))
		}
	}
	return delivered
}

// Subscribers returns the distinct user ids currently subscribed to a channel.
func (r *Registry) Subscribers(channel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	out := []string{}
	for connID := range r.channels[channel] {
		state, ok := r.sessions[connID]
		if !ok {
			continue
		}
		if _, dup := seen[state.session.UserID]; dup {
			continue
		}
		seen[state.session.UserID] = struct{}{}
		out = append(out, state.session.UserID)
	}
	return out
}
