package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-portal/internal/observability"
)

func newTestRegistry(buffer int) *Registry {
	return NewRegistry(zap.NewNop(), observability.NewMetrics(), buffer)
}

func TestRegistry_RegisterAutoJoinsUserChannel(t *testing.T) {
	r := newTestRegistry(4)
	session := r.Register("conn-1", "user-1")

	delivered := r.Push(UserChannel("user-1"), Message{EventID: "ev-1", Kind: "status_changed"})
	assert.Equal(t, 1, delivered)

	msg := <-session.Send()
	assert.Equal(t, "ev-1", msg.EventID)
}

func TestRegistry_JoinAndLeave(t *testing.T) {
	r := newTestRegistry(4)
	session := r.Register("conn-1", "user-1")

	r.Join("conn-1", IssueChannel("issue-9"))
	assert.Equal(t, 1, r.Push(IssueChannel("issue-9"), Message{EventID: "ev-1"}))
	<-session.Send()

	r.Leave("conn-1", IssueChannel("issue-9"))
	assert.Equal(t, 0, r.Push(IssueChannel("issue-9"), Message{EventID: "ev-2"}))
}

func TestRegistry_JoinUnknownConnIgnored(t *testing.T) {
	r := newTestRegistry(4)
	r.Join("ghost", ChannelAdminDashboard)
	assert.Equal(t, 0, r.Push(ChannelAdminDashboard, Message{EventID: "ev-1"}))
}

func TestRegistry_DisconnectCleansUpAllSubscriptions(t *testing.T) {
	r := newTestRegistry(4)
	session := r.Register("conn-1", "user-1")
	r.Join("conn-1", IssueChannel("issue-9"))
	r.Join("conn-1", ChannelAdminDashboard)

	r.Disconnect("conn-1")

	select {
	case <-session.Done():
	default:
		t.Fatal("expected Done to be closed after disconnect")
	}
	assert.Equal(t, 0, r.Push(UserChannel("user-1"), Message{EventID: "ev-1"}))
	assert.Equal(t, 0, r.Push(IssueChannel("issue-9"), Message{EventID: "ev-2"}))
	assert.Equal(t, 0, r.Push(ChannelAdminDashboard, Message{EventID: "ev-3"}))
	assert.Empty(t, r.Subscribers(ChannelAdminDashboard))
}

func TestRegistry_PushDropsOnFullBuffer(t *testing.T) {
	r := newTestRegistry(1)
	session := r.Register("conn-1", "user-1")

	assert.Equal(t, 1, r.Push(UserChannel("user-1"), Message{EventID: "ev-1"}))
	// Buffer is full and nobody is draining; the push must not block.
	assert.Equal(t, 0, r.Push(UserChannel("user-1"), Message{EventID: "ev-2"}))

	msg := <-session.Send()
	assert.Equal(t, "ev-1", msg.EventID)
}

func TestRegistry_SubscribersDistinctUsers(t *testing.T) {
	r := newTestRegistry(4)
	// Two connections for the same user, one for another.
	r.Register("conn-1", "admin-1")
	r.Register("conn-2", "admin-1")
	r.Register("conn-3", "admin-2")
	r.Join("conn-1", ChannelAdminDashboard)
	r.Join("conn-2", ChannelAdminDashboard)
	r.Join("conn-3", ChannelAdminDashboard)

	subscribers := r.Subscribers(ChannelAdminDashboard)
	assert.ElementsMatch(t, []string{"admin-1", "admin-2"}, subscribers)
}

func TestRegistry_ConcurrentJoinLeavePush(t *testing.T) {
	r := newTestRegistry(64)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		connID := fmt.Sprintf("conn-%d", i)
		userID := fmt.Sprintf("user-%d", i)
		session := r.Register(connID, userID)

		wg.Add(2)
		go func(connID string, session *Session) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Join(connID, ChannelAdminDashboard)
				r.Leave(connID, ChannelAdminDashboard)
			}
			r.Disconnect(connID)
		}(connID, session)
		go func(session *Session) {
			defer wg.Done()
			for {
				select {
				case <-session.Send():
				case <-session.Done():
					return
				}
			}
		}(session)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			r.Push(ChannelAdminDashboard, Message{EventID: fmt.Sprintf("ev-%d", i)})
		}
		close(done)
	}()

	wg.Wait()
	<-done

	require.Empty(t, r.Subscribers(ChannelAdminDashboard))
}
