package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"adboard-backend/internal/common/config"
)

const userIDKey = "user_id"

// TelegramAuth validates the mini-app init data from the init_data header
// and stores the authenticated user id in the request context.
func TelegramAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("init_data")
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Telegram init data required"})
			return
		}

		if err := initdata.Validate(raw, cfg.Telegram.BotToken, 24*time.Hour); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid init data"})
			return
		}

		parsed, err := initdata.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed init data"})
			return
		}

		c.Set(userIDKey, parsed.User.ID)
		c.Next()
	}
}

// RequireOperator restricts a route to the configured operator ids. Must run
// after TelegramAuth.
func RequireOperator(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c)
		if userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Telegram init data required"})
			return
		}
		for _, id := range cfg.Admin.UserIDs {
			if id == userID {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator access required"})
	}
}

// WebhookSecret guards internal callback routes with a shared secret header.
func WebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Webhook-Secret")
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, 0 when unauthenticated.
func UserID(c *gin.Context) int64 {
	if v, exists := c.Get(userIDKey); exists {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}
