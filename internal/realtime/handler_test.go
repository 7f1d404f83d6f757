package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

type stubAuthenticator map[string]domain.Principal

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	p, ok := s[token]
	if !ok {
		return domain.Principal{}, errors.New("bad token")
	}
	return p, nil
}

func newTestServer(t *testing.T, hub *Hub) string {
	t.Helper()
	auth := stubAuthenticator{
		"agent-token": {ID: "a1", Role: domain.RoleAgent, DepartmentID: "d1"},
	}
	srv := httptest.NewServer(NewHandler(hub, auth, nil, 8, nil))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHandlerJoinsPrincipalChannels(t *testing.T) {
	hub := NewHub(nil, nil)
	wsURL := newTestServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?token=agent-token", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var hello Frame
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, EventConnected, hello.Event)

	hub.Publish(DepartmentChannel("d1"), EventNewComment, map[string]string{"ticketId": "t1", "commentBy": "client"})

	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, EventNewComment, frame.Event)
	assert.Equal(t, map[string]any{"ticketId": "t1", "commentBy": "client"}, frame.Data)
}

func TestHandlerRejectsBadCredential(t *testing.T) {
	hub := NewHub(nil, nil)
	wsURL := newTestServer(t, hub)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws?token=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestOriginAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://desk.local/ws", nil)
	assert.True(t, originAllowed(req, nil), "no origin header")

	req.Header.Set("Origin", "http://desk.local:3000")
	assert.True(t, originAllowed(req, nil), "same host")

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, originAllowed(req, nil))
	assert.True(t, originAllowed(req, []string{"https://evil.example.com/"}))
	assert.True(t, originAllowed(req, []string{"*"}))
}
