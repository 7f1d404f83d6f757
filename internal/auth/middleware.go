package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Authenticator resolves a bearer credential to a Principal. The directory
// record wins over token claims for role and department, so a demoted or
// deactivated user loses access without waiting for token expiry.
type Authenticator struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewAuthenticator constructs the adapter. users may be nil, in which case
// the token claims are trusted as-is.
func NewAuthenticator(tokens *TokenManager, users repository.UserRepository) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate verifies token and returns the caller identity.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	if strings.TrimSpace(token) == "" {
		return domain.Principal{}, apperrors.NewUnauthorized("missing credential")
	}
	claims, err := a.tokens.ParseToken(token)
	if err != nil {
		return domain.Principal{}, apperrors.NewUnauthorized("invalid token")
	}
	principal := claims.Principal()
	if a.users == nil {
		return principal, nil
	}

	user, err := a.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Principal{}, apperrors.NewUnauthorized("user not found")
		}
		return domain.Principal{}, apperrors.MapError(err)
	}
	if !user.IsActive {
		return domain.Principal{}, apperrors.NewUnauthorized("user is inactive")
	}

	principal.Username = user.Username
	principal.Role = user.Role
	principal.CompanyID = deref(user.CompanyID)
	principal.DepartmentID = deref(user.DepartmentID)
	return principal, nil
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	auth *Authenticator
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(auth *Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	principal, err := m.auth.Authenticate(c.UserContext(), parts[1])
	if err != nil {
		return err
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (domain.Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return domain.Principal{}, false
	}
	principal, ok := val.(domain.Principal)
	return principal, ok
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
