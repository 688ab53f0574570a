package middleware

import (
	"strings"

	"smmpanel/pkg/config"
	"smmpanel/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ContextUserID   = "auth.user_id"
	ContextUserRole = "auth.user_role"

	// SessionCookie carries the JWT for browser sessions.
	SessionCookie = "panel_session"
)

// SessionClaims is the JWT payload issued at login.
type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth authenticates the request from the Authorization bearer token or the
// session cookie and stores user id and role on the context.
func Auth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			if cookie, err := c.Cookie(SessionCookie); err == nil {
				token = cookie
			}
		}

		if token == "" {
			abort(c, errutil.Unauthorized("Authentication required"))
			return
		}

		claims := &SessionClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.Session.Secret), nil
		})
		if err != nil || !parsed.Valid {
			abort(c, errutil.Unauthorized("Authentication required"))
			return
		}

		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// UserID returns the authenticated user id, empty when unauthenticated.
func UserID(c *gin.Context) string {
	id, _ := c.Get(ContextUserID)
	s, _ := id.(string)
	return s
}

// UserRole returns the authenticated role, empty when unauthenticated.
func UserRole(c *gin.Context) string {
	role, _ := c.Get(ContextUserRole)
	s, _ := role.(string)
	return s
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
