// Package health exposes liveness, readiness, and basic usage stats over
// HTTP for process supervisors and operators.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avbuyanov/postpilot/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SessionCounter reports how many dialogue sessions are live in memory.
type SessionCounter interface {
	SessionCount() int
}

// StartOpts holds configuration for the health server.
type StartOpts struct {
	DB       *gorm.DB
	Port     int
	Secret   string // bearer token guarding /stats; empty disables the route
	Sessions SessionCounter
	Out      io.Writer
}

// Start launches the health HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("health: db is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8081
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, opts)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Health endpoint at http://localhost:%d/healthz\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health: %w", err)
	}
	return nil
}

func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/readyz", func(c *gin.Context) {
		sqlDB, err := opts.DB.DB()
		if err == nil {
			pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(pingCtx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if opts.Secret != "" {
		router.GET("/stats", requireBearer(opts.Secret), func(c *gin.Context) {
			c.JSON(http.StatusOK, collectStats(opts))
		})
	}
}

// requireBearer rejects requests that lack the expected bearer token.
func requireBearer(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// collectStats gathers profile and generation counters from the database
// and the in-memory session store.
func collectStats(opts StartOpts) gin.H {
	var profiles, generations, failures int64
	opts.DB.Model(&models.ContentProfile{}).Count(&profiles)
	opts.DB.Model(&models.GenerationLog{}).Count(&generations)
	opts.DB.Model(&models.GenerationLog{}).Where("success = ?", false).Count(&failures)

	stats := gin.H{
		"profiles":           profiles,
		"generations":        generations,
		"failed_generations": failures,
	}
	if opts.Sessions != nil {
		stats["active_sessions"] = opts.Sessions.SessionCount()
	}
	return stats
}
