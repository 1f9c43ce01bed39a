package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/civic-portal/internal/domain"
	"github.com/spec-kit/civic-portal/internal/repository"
	apperrors "github.com/spec-kit/civic-portal/pkg/util/errorutil"
)

const actorKey = "auth_actor"

// AuthMiddleware validates bearer tokens and loads the acting user. The user
// record is reloaded per request so role and active-flag changes take effect
// immediately rather than at token expiry.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	actor, err := m.resolve(c.Get("Authorization"), c)
	if err != nil {
		return err
	}
	c.Locals(actorKey, actor)
	return c.Next()
}

// ResolveToken authenticates a raw token string. Used by the websocket
// endpoint, which carries the token as a query parameter instead of a header.
func (m *AuthMiddleware) ResolveToken(c *fiber.Ctx, token string) (*domain.User, error) {
	if token == "" {
		return nil, apperrors.NewUnauthorized("missing token")
	}
	return m.load(c, token)
}

func (m *AuthMiddleware) resolve(authHeader string, c *fiber.Ctx) (*domain.User, error) {
	if authHeader == "" {
		return nil, apperrors.NewUnauthorized("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, apperrors.NewUnauthorized("invalid authorization header")
	}
	return m.load(c, parts[1])
}

func (m *AuthMiddleware) load(c *fiber.Ctx, token string) (*domain.User, error) {
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}
	user, err := m.users.GetByID(c.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("user not found")
		}
		return nil, apperrors.MapError(err)
	}
	if !user.IsActive {
		return nil, apperrors.NewForbidden("account deactivated")
	}
	return user, nil
}

// ActorFromContext retrieves the authenticated user.
func ActorFromContext(c *fiber.Ctx) (*domain.User, bool) {
	val := c.Locals(actorKey)
	if val == nil {
		return nil, false
	}
	actor, ok := val.(*domain.User)
	return actor, ok
}

// RequireAdmin ensures the actor passes the single admin-equivalence check.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !domain.IsAdmin(actor.Role) {
			return apperrors.NewForbidden("admin role required")
		}
		return c.Next()
	}
}
