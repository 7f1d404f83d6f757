package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/realtime/realtimetest"
	"github.com/spec-kit/helpdesk-service/internal/repository/repotest"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

const (
	deptID   = "7d1f3c52-8a64-4e0b-9c2d-31a5f0e6b701"
	clientID = "2c9e1a7b-5f30-4d86-a1e4-6b8c0d2f9a11"
	agent1ID = "a3f08d6e-1b27-4c59-8e3a-9d4b7c1e0f21"
	agent2ID = "b41c7e9a-6d03-4f28-b5a1-2e8f9c3d4a31"
	adminID  = "e5a2b8c4-7f19-4a6d-8c3e-0b1d5f7a9c41"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	app    *fiber.App
	store  *repotest.Store
	tokens *auth.TokenManager
	ready  error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		store:  repotest.NewStore(),
		tokens: auth.NewTokenManager("test-secret", 60),
	}
	dept := deptID
	s.store.AddDepartment(domain.Department{ID: dept, Name: "IT", IsActive: true})
	s.store.AddUser(domain.User{ID: clientID, Username: "client", Role: domain.RoleClient, IsActive: true})
	s.store.AddUser(domain.User{ID: agent1ID, Username: "agent1", Role: domain.RoleAgent, DepartmentID: &dept, IsActive: true})
	s.store.AddUser(domain.User{ID: agent2ID, Username: "agent2", Role: domain.RoleAgent, DepartmentID: &dept, IsActive: true})
	s.store.AddUser(domain.User{ID: adminID, Username: "admin", Role: domain.RoleAdmin, IsActive: true})

	metrics := observability.NewMetrics()
	dispatcher := events.NewSyncDispatcher(nil, metrics)
	audit := service.NewActivityAuditLog(service.ActivityLogDependencies{
		ActivityRepo: s.store.Activity(),
		TicketRepo:   s.store.Tickets(),
	})
	dispatcher.Subscribe("notifications", service.NewNotificationRouter(service.NotificationRouterDependencies{
		NotificationRepo: s.store.Notifications(),
		UserRepo:         s.store.Users(),
		Transport:        realtimetest.NewRecorder(),
	}))
	dispatcher.Subscribe("activity", audit)

	machine := service.NewStateMachine(service.StateMachineDependencies{
		TicketRepo:  s.store.Tickets(),
		CommentRepo: s.store.Comments(),
		UserRepo:    s.store.Users(),
		Dispatcher:  dispatcher,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     s.store.Tickets(),
		CommentRepo:    s.store.Comments(),
		FeedbackRepo:   s.store.Feedback(),
		DepartmentRepo: s.store.Departments(),
		UserRepo:       s.store.Users(),
		Dispatcher:     dispatcher,
	})

	s.app = fiber.New()
	RegisterMiddlewares(s.app, zap.NewNop(), metrics, 0)
	RegisterRoutes(s.app, RouteConfig{
		Health: handlers.NewHealthHandler("helpdesk-service", "test", map[string]handlers.Pinger{
			"postgres": pingerFunc(func(context.Context) error { return s.ready }),
		}),
		Users:          handlers.NewUsersHandler(),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Lifecycle:      handlers.NewLifecycleHandler(machine),
		Inbox:          handlers.NewInboxHandler(service.NewNotificationService(s.store.Notifications())),
		Activity:       handlers.NewActivityHandler(audit),
		AuthMiddleware: auth.NewAuthMiddleware(auth.NewAuthenticator(s.tokens, s.store.Users())),
		Metrics:        metrics.Handler(),
	})
	return s
}

func (s *testServer) token(t *testing.T, id string) string {
	t.Helper()
	u, err := s.store.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	tok, _, err := s.tokens.GenerateToken(domain.Principal{ID: u.ID, Username: u.Username, Role: u.Role})
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func TestRequestsWithoutCredentialAreRejected(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/api/v1/tickets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = s.do(t, http.MethodGet, "/api/v1/tickets", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	client := s.token(t, clientID)
	agent1 := s.token(t, agent1ID)
	agent2 := s.token(t, agent2ID)

	status, body := s.do(t, http.MethodPost, "/api/v1/tickets", client, map[string]any{
		"title": "VPN drops", "description": "Every ten minutes", "department_id": deptID,
	})
	require.Equal(t, http.StatusCreated, status, body)
	ticketID := data(body)["id"].(string)
	assert.Equal(t, "open", data(body)["status"])
	assert.Equal(t, "medium", data(body)["priority"])

	status, body = s.do(t, http.MethodPost, "/api/v1/tickets/"+ticketID+"/assign", agent1, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "in-progress", data(body)["status"])
	assert.Equal(t, agent1ID, data(body)["assigned_agent_id"])

	status, body = s.do(t, http.MethodPost, "/api/v1/tickets/"+ticketID+"/assign", agent2, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))
	assert.Equal(t, service.MsgAlreadyAssigned, body["error"].(map[string]any)["message"])

	status, _ = s.do(t, http.MethodPost, "/api/v1/tickets/"+ticketID+"/resolve", client, nil)
	assert.Equal(t, http.StatusForbidden, status, "clients cannot resolve")

	status, body = s.do(t, http.MethodPatch, "/api/v1/tickets/"+ticketID+"/status", agent1, map[string]any{"status": "resolved"})
	require.Equal(t, http.StatusOK, status, body)
	assert.NotNil(t, data(body)["resolved_at"])

	status, body = s.do(t, http.MethodPost, "/api/v1/tickets/"+ticketID+"/feedback", client, map[string]any{"rating": 5})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = s.do(t, http.MethodPost, "/api/v1/tickets/"+ticketID+"/close", client, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "MANUAL", data(body)["closure_reason"])

	status, body = s.do(t, http.MethodPost, "/api/v1/tickets/"+ticketID+"/reopen", client, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))

	status, body = s.do(t, http.MethodGet, "/api/v1/tickets/"+ticketID+"/activity", client, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 5)
}

func TestValidationErrorsCarryDetails(t *testing.T) {
	s := newTestServer(t)
	client := s.token(t, clientID)

	status, body := s.do(t, http.MethodPost, "/api/v1/tickets", client, map[string]any{"department_id": deptID})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "required", details["title"])

	status, body = s.do(t, http.MethodPatch, "/api/v1/tickets/"+uuid.NewString()+"/status", client, map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestMalformedIdentifiersAreValidationErrors(t *testing.T) {
	s := newTestServer(t)
	client := s.token(t, clientID)
	agent := s.token(t, agent1ID)

	status, body := s.do(t, http.MethodGet, "/api/v1/tickets/not-a-uuid", client, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/v1/tickets/not-a-uuid/resolve", agent, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/v1/tickets", client, map[string]any{
		"title": "Laptop", "description": "Fan noise", "department_id": "dept-1",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "uuid", details["department_id"])

	status, body = s.do(t, http.MethodPost, "/api/v1/tickets", client, map[string]any{
		"title": "Laptop", "description": "Fan noise", "department_id": deptID,
	})
	require.Equal(t, http.StatusCreated, status, body)
	ticketID := data(body)["id"].(string)

	status, body = s.do(t, http.MethodPost, "/api/v1/tickets/"+ticketID+"/reassign", agent, map[string]any{"agent_id": "someone"})
	assert.Equal(t, http.StatusBadRequest, status)
	details = body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "uuid", details["agent_id"])

	status, _ = s.do(t, http.MethodPost, "/api/v1/notifications/42/read", agent, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRoleGates(t *testing.T) {
	s := newTestServer(t)
	client := s.token(t, clientID)

	status, body := s.do(t, http.MethodGet, "/api/v1/activity", client, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, _ = s.do(t, http.MethodDelete, "/api/v1/tickets/"+uuid.NewString(), client, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(t, http.MethodGet, "/api/v1/tickets/"+uuid.NewString(), client, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = s.do(t, http.MethodGet, "/api/v1/me", client, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "client", data(body)["role"])
}

func TestInboxEndpoints(t *testing.T) {
	s := newTestServer(t)
	client := s.token(t, clientID)
	agent := s.token(t, agent1ID)

	status, _ := s.do(t, http.MethodPost, "/api/v1/tickets", client, map[string]any{
		"title": "Mouse", "description": "Double clicks", "department_id": deptID,
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := s.do(t, http.MethodGet, "/api/v1/notifications/unread-count", agent, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, data(body)["unread"])

	status, body = s.do(t, http.MethodGet, "/api/v1/notifications?unread=true", agent, nil)
	require.Equal(t, http.StatusOK, status)
	items := body["data"].([]any)
	require.Len(t, items, 1)
	id := items[0].(map[string]any)["id"].(string)

	status, _ = s.do(t, http.MethodPost, "/api/v1/notifications/"+id+"/read", client, nil)
	assert.Equal(t, http.StatusNotFound, status, "not the recipient")

	status, _ = s.do(t, http.MethodPost, "/api/v1/notifications/"+id+"/read", agent, nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	s.ready = errors.New("connection refused")
	status, body = s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(body))

	status, body = s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "http_requests_total")
}
