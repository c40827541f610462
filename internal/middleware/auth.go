package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/concierge-backend/internal/pkg/logger"
)

// Context keys set by the webhook middleware. Claims are CLAIMED values:
// the isolation guard re-verifies them against the identity registry before
// any tenant data is touched.
const (
	CtxClaimedTenant  = "claimed_tenant_id"
	CtxClaimedChannel = "claimed_channel"
)

type WebhookClaims struct {
	TenantID string `json:"tenant_id"`
	Channel  string `json:"channel"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	log           *logger.Logger
	webhookSecret []byte
	opsSecret     []byte
}

func NewAuthMiddleware(log *logger.Logger, webhookSecret, opsSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		log:           log.With("Middleware", "AuthMiddleware"),
		webhookSecret: []byte(webhookSecret),
		opsSecret:     []byte(opsSecret),
	}
}

// RequireWebhookToken authenticates inbound channel webhooks. The token
// proves the request came from a configured channel integration; it does
// NOT prove which tenant the message belongs to.
func (am *AuthMiddleware) RequireWebhookToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearer(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		claims := &WebhookClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return am.webhookSecret, nil
		})
		if err != nil || !token.Valid {
			am.log.Debug("Webhook token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		c.Set(CtxClaimedTenant, claims.TenantID)
		c.Set(CtxClaimedChannel, claims.Channel)
		c.Next()
	}
}

// RequireOpsToken guards the operator endpoints with a separate secret.
func (am *AuthMiddleware) RequireOpsToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearer(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return am.opsSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
