package server

import (
	"context"
	"net/http"
	"time"

	"silent-auction/internal/auth"
	"silent-auction/internal/biddingerrors"
	model "silent-auction/internal/models"
	"silent-auction/services/bidding/helpers"
	"silent-auction/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if p := helpers.PrincipalFrom(c); p != nil {
		fields["user_id"] = p.UserID
	}
	utils.Info("HTTP Request", fields)
}

// CORSMiddleware allows browser clients from the configured origins
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// PrincipalResolver turns an authenticated identity into a principal
type PrincipalResolver interface {
	Resolve(ctx context.Context, id *model.Identity) (*model.Principal, error)
}

// AuthMiddleware resolves the caller when a token is present. Requests
// without a token continue anonymously; an invalid token is rejected.
type AuthMiddleware struct {
	provider auth.Provider
	users    PrincipalResolver
}

func NewAuthMiddleware(provider auth.Provider, users PrincipalResolver) *AuthMiddleware {
	return &AuthMiddleware{provider: provider, users: users}
}

func extractToken(c *gin.Context) string {
	// EventSource cannot set headers, streams pass the token in the query
	if q := c.Query("token"); q != "" {
		return q
	}
	return auth.BearerToken(c.GetHeader("Authorization"))
}

// Identify attaches the principal for any request carrying a token
func (am *AuthMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		id, err := am.provider.Authenticate(token)
		if err != nil {
			utils.JSONError(c, http.StatusUnauthorized, err, "invalid or expired token")
			utils.Warn("AuthMiddleware: token rejected", map[string]any{"path": c.Request.URL.Path, "error": err.Error()})
			c.Abort()
			return
		}

		p, err := am.users.Resolve(c.Request.Context(), id)
		if err != nil {
			helpers.RespondError(c, "AuthMiddleware", err, map[string]any{"user_id": id.UserID})
			c.Abort()
			return
		}

		helpers.SetPrincipal(c, p)
		c.Next()
	}
}

// RequireAuth rejects anonymous requests
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if helpers.PrincipalFrom(c) == nil {
			utils.JSONError(c, http.StatusUnauthorized, biddingerrors.ErrAuthRequired, "authentication required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects callers without the admin role
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := helpers.PrincipalFrom(c)
		switch {
		case p == nil:
			utils.JSONError(c, http.StatusUnauthorized, biddingerrors.ErrAuthRequired, "authentication required")
			c.Abort()
		case !p.IsAdmin():
			utils.JSONError(c, http.StatusForbidden, biddingerrors.ErrForbidden, "admin role required")
			utils.Warn("AuthMiddleware: admin route denied", map[string]any{"path": c.Request.URL.Path, "user_id": p.UserID})
			c.Abort()
		default:
			c.Next()
		}
	}
}
