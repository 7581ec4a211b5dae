package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Claims are the JWT claims this service understands. Authentication
// (password/MFA mechanics) happens upstream; the token's role claim is
// trusted here and policy evaluation is enforced independently.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Middleware authenticates Bearer tokens and stores the resolved Actor in
// the request context. Requests without a token proceed as the anonymous
// actor; the policy engine default-denies anything anonymous callers may
// not do.
func Middleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return next(withActor(c, Anonymous()))
			}

			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "malformed authorization header")
			}

			actor, err := actorFromToken(raw, secret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			return next(withActor(c, actor))
		}
	}
}

func actorFromToken(raw string, secret []byte) (Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return Actor{}, err
	}
	if !token.Valid {
		return Actor{}, fmt.Errorf("token invalid")
	}

	switch claims.Role {
	case RoleService, RoleStaff, RolePatient:
	default:
		return Actor{}, fmt.Errorf("unknown role claim %q", claims.Role)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, fmt.Errorf("subject is not a uuid: %w", err)
	}

	return Actor{ID: id, Role: claims.Role}, nil
}

// DevMiddleware grants every request a fixed staff actor. Development
// only; config.Validate refuses this mode in production.
func DevMiddleware() echo.MiddlewareFunc {
	devActor := Actor{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), Role: RoleStaff}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(withActor(c, devActor))
		}
	}
}

func withActor(c echo.Context, actor Actor) echo.Context {
	req := c.Request()
	c.SetRequest(req.WithContext(WithActor(req.Context(), actor)))
	return c
}

// RequireRole returns middleware that rejects requests whose actor has
// none of the given roles. Service actors always pass.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := ActorFromContext(c.Request().Context())
			if actor.Role == RoleService {
				return next(c)
			}
			for _, required := range roles {
				if actor.Role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
	}
}
