package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Admin auth context keys
const (
	AdminSubjectKey = "admin_subject"
	AuthHeaderKey   = "Authorization"
	BearerPrefix    = "Bearer "
)

// AdminAuthConfig holds configuration for the admin API guard
type AdminAuthConfig struct {
	// Secret is the HMAC signing key; empty disables the guard (dev only)
	Secret string
	// Issuer, when set, must match the token's iss claim
	Issuer string
	// Logger for middleware logging
	Logger *zap.Logger
}

// AdminAuth guards the privileged admin routes with a signed bearer token.
// Tenant provisioning and quota introspection must never be reachable from
// webhook traffic, so this runs on a separate route group.
func AdminAuth(cfg AdminAuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Secret == "" {
			// Guard disabled; config.Validate rejects this in production
			c.Next()
			return
		}

		authHeader := c.GetHeader(AuthHeaderKey)
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			abortUnauthorized(c, cfg, "Missing authorization header")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
		if tokenString == "" {
			abortUnauthorized(c, cfg, "Missing token")
			return
		}

		parserOpts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		}
		if cfg.Issuer != "" {
			parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
		}

		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
			return []byte(cfg.Secret), nil
		}, parserOpts...)
		if err != nil || !token.Valid {
			message := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				message = "Token has expired"
			}
			abortUnauthorized(c, cfg, message)
			return
		}

		c.Set(AdminSubjectKey, claims.Subject)
		c.Next()
	}
}

// GetAdminSubject retrieves the authenticated operator from gin context
func GetAdminSubject(c *gin.Context) string {
	if subject, exists := c.Get(AdminSubjectKey); exists {
		if s, ok := subject.(string); ok {
			return s
		}
	}
	return ""
}

// abortUnauthorized rejects the request with a 401
func abortUnauthorized(c *gin.Context, cfg AdminAuthConfig, message string) {
	if cfg.Logger != nil {
		cfg.Logger.Warn("admin authentication failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("reason", message),
		)
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "ERR_UNAUTHORIZED",
			"message": message,
		},
	})
}
