package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func mustReceiveFrame(t *testing.T, ch <-chan []byte, timeout time.Duration) Frame {
	t.Helper()
	select {
	case payload := <-ch:
		var frame Frame
		require.NoError(t, json.Unmarshal(payload, &frame))
		return frame
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for websocket payload")
		return Frame{}
	}
}

func mustNotReceive(t *testing.T, ch <-chan []byte) {
	t.Helper()
	select {
	case payload := <-ch:
		t.Fatalf("expected no payload, got %q", string(payload))
	default:
	}
}

func TestHubPublishReachesChannelMembersOnly(t *testing.T) {
	hub := NewHub(nil, nil)

	agent := NewClient(nil, domain.Principal{ID: "a1", Role: domain.RoleAgent}, 4)
	client := NewClient(nil, domain.Principal{ID: "c1", Role: domain.RoleClient}, 4)
	hub.Register(agent)
	hub.Register(client)
	hub.Join(agent.ID, RoleChannel(domain.RoleAgent))
	hub.Join(client.ID, UserChannel("c1"))

	hub.Publish(RoleChannel(domain.RoleAgent), EventDashboardUpdate, map[string]string{"message": "ticket created"})

	frame := mustReceiveFrame(t, agent.Send, 100*time.Millisecond)
	assert.Equal(t, EventDashboardUpdate, frame.Event)
	assert.Equal(t, map[string]any{"message": "ticket created"}, frame.Data)
	mustNotReceive(t, client.Send)
}

func TestHubPublishToConnection(t *testing.T) {
	hub := NewHub(nil, nil)
	first := NewClient(nil, domain.Principal{ID: "u1"}, 4)
	second := NewClient(nil, domain.Principal{ID: "u2"}, 4)
	hub.Register(first)
	hub.Register(second)

	hub.PublishToConnection(second.ID, EventConnected, nil)

	assert.Equal(t, EventConnected, mustReceiveFrame(t, second.Send, 100*time.Millisecond).Event)
	mustNotReceive(t, first.Send)
}

func TestHubDropsFramesWhenQueueFull(t *testing.T) {
	hub := NewHub(nil, nil)
	slow := NewClient(nil, domain.Principal{ID: "u1"}, 1)
	hub.Register(slow)
	hub.Join(slow.ID, UserChannel("u1"))

	hub.Publish(UserChannel("u1"), "first", nil)
	hub.Publish(UserChannel("u1"), "second", nil)

	assert.Equal(t, "first", mustReceiveFrame(t, slow.Send, 100*time.Millisecond).Event)
	mustNotReceive(t, slow.Send)
	assert.Equal(t, 1, hub.ConnectionCount(), "a slow client stays connected")
}

func TestHubUnregisterLeavesChannels(t *testing.T) {
	hub := NewHub(nil, nil)
	c := NewClient(nil, domain.Principal{ID: "u1"}, 1)
	hub.Register(c)
	hub.Join(c.ID, UserChannel("u1"))
	require.Equal(t, 1, hub.Members(UserChannel("u1")))

	hub.Unregister(c)
	hub.Unregister(c)

	assert.Equal(t, 0, hub.Members(UserChannel("u1")))
	assert.Equal(t, 0, hub.ConnectionCount())
	hub.Publish(UserChannel("u1"), "ignored", nil)
	hub.Join(c.ID, UserChannel("u1"))
	assert.Equal(t, 0, hub.Members(UserChannel("u1")))

	_, open := <-c.Send
	assert.False(t, open)
}

func TestChannelsFor(t *testing.T) {
	assert.Equal(t,
		[]string{"user:a1", "role:agent", "department:d1"},
		ChannelsFor(domain.Principal{ID: "a1", Role: domain.RoleAgent, DepartmentID: "d1"}))
	assert.Equal(t,
		[]string{"user:c1", "role:client"},
		ChannelsFor(domain.Principal{ID: "c1", Role: domain.RoleClient, DepartmentID: "d1"}))
}
