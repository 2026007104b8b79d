package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sitepulse/internal/agent/version"
	"sitepulse/internal/model"
	"sitepulse/internal/reviews"
)

type visitRequest struct {
	Page     string `json:"page"`
	Referrer string `json:"referrer"`
}

type feedResponse struct {
	Reviews []reviews.Card `json:"reviews"`
	HasMore bool           `json:"hasMore"`
}

func (a *Agent) routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), a.requestLogger())

	r.GET("/healthz", a.handleHealth)
	r.GET("/version", a.handleVersion)
	api := r.Group("/api")
	api.GET("/widgets", a.handleWidgets)
	api.GET("/widgets/:id", a.handleWidget)
	api.GET("/reviews", a.handleReviews)
	api.POST("/reviews/more", a.handleReviewsMore)
	api.POST("/visit", a.handleVisit)
	return r
}

func (a *Agent) runHTTPServer(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http endpoint listening", "addr", a.cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server %s: %w", a.cfg.ListenAddr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http server shutdown failed", "error", err)
		}
		return nil
	}
}

func (a *Agent) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (a *Agent) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, a.health.Snapshot())
}

func (a *Agent) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get(a.cfg))
}

func (a *Agent) handleWidgets(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, a.board.Snapshot())
}

func (a *Agent) handleWidget(c *gin.Context) {
	el, ok := a.board.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown widget"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, el)
}

func (a *Agent) handleReviews(c *gin.Context) {
	if a.paginator == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "reviews feed not configured"})
		return
	}
	// Refresh keeps loaded pages while lastUpdate and source are unchanged.
	if _, err := a.paginator.Refresh(c.Request.Context()); err != nil {
		a.logger.Warn("reviews refresh failed", "error", err)
	}
	c.JSON(http.StatusOK, feedResponse{Reviews: a.paginator.Feed(), HasMore: a.paginator.HasMore()})
}

func (a *Agent) handleReviewsMore(c *gin.Context) {
	if a.paginator == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "reviews feed not configured"})
		return
	}
	_, err := a.paginator.LoadMore(c.Request.Context())
	switch {
	case errors.Is(err, reviews.ErrNoMore):
		c.Status(http.StatusNoContent)
	case err != nil:
		a.logger.Warn("load more reviews failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load reviews"})
	default:
		c.JSON(http.StatusOK, feedResponse{Reviews: a.paginator.Feed(), HasMore: a.paginator.HasMore()})
	}
}

func (a *Agent) handleVisit(c *gin.Context) {
	sessionID, err := c.Cookie(a.cfg.SessionCookie)
	if err != nil || strings.TrimSpace(sessionID) == "" {
		sessionID = uuid.NewString()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(a.cfg.SessionCookie, sessionID, 0, "/", "", c.Request.TLS != nil, true)
	}

	var req visitRequest
	_ = c.ShouldBindJSON(&req)
	referrer := req.Referrer
	if referrer == "" {
		referrer = c.Request.Referer()
	}
	a.tracker.Schedule(a.baseCtx, sessionID, model.Visit{
		Page:      pageName(req.Page),
		UserAgent: c.Request.UserAgent(),
		Referrer:  referrer,
		ClientIP:  c.ClientIP(),
	})
	c.Status(http.StatusAccepted)
}

// pageName keeps the last path segment, the way the site names its pages.
func pageName(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}
