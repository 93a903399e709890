package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"NewsDesk/internal/domain"
)

// StatsReader is the store view served under /status.
type StatsReader interface {
	Stats(ctx context.Context) (domain.Stats, error)
}

// NewRouter creates the ops router with /healthz and /status.
func NewRouter(stats StatsReader, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	router.GET("/healthz", healthCheck)
	router.GET("/status", statusHandler(stats))

	return router
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func statusHandler(stats StatsReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		st, err := stats.Stats(ctx)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

func loggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if logger == nil {
			return
		}
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		}
		if len(c.Errors) > 0 {
			logger.Error("http request failed", append(attrs, "error", c.Errors.String())...)
			return
		}
		logger.Debug("http request", attrs...)
	}
}
