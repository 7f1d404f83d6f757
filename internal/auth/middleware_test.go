package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository/repotest"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func TestAuthenticatePrefersDirectoryRecord(t *testing.T) {
	store := repotest.NewStore()
	dept := "dept-9"
	store.AddUser(domain.User{ID: "u-1", Username: "ana", Role: domain.RoleAgent, DepartmentID: &dept, IsActive: true})
	store.AddUser(domain.User{ID: "u-2", Username: "gone", Role: domain.RoleAgent, IsActive: false})

	tm := NewTokenManager("s3cret", 15)
	authn := NewAuthenticator(tm, store.Users())
	ctx := context.Background()

	// The token still claims admin; the directory says agent.
	tok, _, err := tm.GenerateToken(domain.Principal{ID: "u-1", Username: "ana", Role: domain.RoleAdmin})
	require.NoError(t, err)
	p, err := authn.Authenticate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAgent, p.Role)
	assert.Equal(t, "dept-9", p.DepartmentID)

	for _, id := range []string{"u-2", "u-missing"} {
		tok, _, err := tm.GenerateToken(domain.Principal{ID: id, Role: domain.RoleAgent})
		require.NoError(t, err)
		_, err = authn.Authenticate(ctx, tok)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized), id)
	}

	_, err = authn.Authenticate(ctx, "  ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestAuthMiddlewareAndRoleGate(t *testing.T) {
	tm := NewTokenManager("s3cret", 15)
	mw := NewAuthMiddleware(NewAuthenticator(tm, nil))

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	app.Get("/staff", mw.Handle, RequireRole(domain.RoleAgent, domain.RoleAdmin), func(c *fiber.Ctx) error {
		p, ok := PrincipalFromContext(c)
		require.True(t, ok)
		return c.SendString(p.ID)
	})
	app.Get("/open", RequireRole(), func(c *fiber.Ctx) error { return c.SendString("ok") })

	call := func(path, header string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	agentTok, _, err := tm.GenerateToken(domain.Principal{ID: "u-1", Role: domain.RoleAgent})
	require.NoError(t, err)
	clientTok, _, err := tm.GenerateToken(domain.Principal{ID: "u-2", Role: domain.RoleClient})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, call("/staff", "Bearer "+agentTok))
	assert.Equal(t, http.StatusOK, call("/staff", "bearer "+agentTok))
	assert.Equal(t, http.StatusForbidden, call("/staff", "Bearer "+clientTok))
	assert.Equal(t, http.StatusUnauthorized, call("/staff", ""))
	assert.Equal(t, http.StatusUnauthorized, call("/staff", "Token "+agentTok))
	assert.Equal(t, http.StatusUnauthorized, call("/open", ""), "role gate needs a principal")
}
