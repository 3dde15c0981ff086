package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

// UpdateHandler consumes updates pushed by Telegram.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

const webhookPrefix = "/webhook/"

// WebhookPath is the path Telegram posts updates to. The secret in the path
// keeps the endpoint unguessable.
func WebhookPath(secret string) string {
	return webhookPrefix + secret
}

// NewRouter serves liveness on GET / and, when handler is not nil, the
// webhook on POST WebhookPath(secret).
func NewRouter(secret string, handler UpdateHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	if handler != nil {
		router.POST(webhookPrefix+":secret", func(c *gin.Context) {
			if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(secret)) != 1 {
				c.AbortWithStatus(http.StatusNotFound)
				return
			}

			var update tgbotapi.Update
			if err := c.ShouldBindJSON(&update); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid update"})
				return
			}
			handler.HandleUpdate(c.Request.Context(), update)
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
	}

	return router
}

// LoggerMiddleware logs every request through google/logger. It logs the
// route pattern, never the raw path, so the webhook secret stays out of logs.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		if c.Writer.Status() >= http.StatusBadRequest {
			logger.Warningf("%s %s -> %d (%s)", c.Request.Method, c.FullPath(), c.Writer.Status(), latency)
			return
		}
		logger.Infof("%s %s -> %d (%s)", c.Request.Method, c.FullPath(), c.Writer.Status(), latency)
	}
}
