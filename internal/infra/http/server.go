package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"zkpad/internal/domain"
	"zkpad/internal/infra/lifecycle"
	"zkpad/internal/usecase"
)

// Server is the HTTP surface over the attestation pipeline. All pipeline
// semantics live below it; handlers translate between wire shapes and
// usecase calls.
type Server struct {
	Create      *usecase.CreateAttestation
	Verify      *usecase.VerifyAttestation
	Interpreter *usecase.InterpretControl
	Engine      *lifecycle.Engine
	Store       domain.StateStore
	Log         *logrus.Entry

	RateLimiter       domain.RateLimiter
	RateLimitRequests int
	RateLimitWindow   time.Duration

	DemoMode bool
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	v1 := r.Group("/api/v1")
	v1.Use(s.rateLimitMiddleware())

	v1.POST("/attestations", s.handleCreate)
	v1.GET("/attestations", s.handleList)
	v1.GET("/attestations/:id", s.handleGet)
	v1.GET("/attestations/:id/download", s.handleDownload)
	v1.POST("/attestations/:id/revoke", s.handleRevoke)
	v1.POST("/attestations/:id/cancel", s.handleCancel)

	v1.POST("/verify", s.handleVerify)
	v1.GET("/verify/:id", s.handleGetReceipt)

	v1.POST("/control/interpret", s.handleInterpret)

	v1.GET("/samples/controls", s.handleListControls)
	v1.GET("/samples/controls/:id", s.handleGetControl)
	v1.POST("/samples/quick-attest/:id", s.handleQuickAttest)

	if s.DemoMode {
		v1.POST("/demo/reset", s.handleDemoReset)
	}
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError translates domain error kinds into HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, domain.ErrInvalidEvidence):
		status, code = http.StatusUnprocessableEntity, "INVALID_EVIDENCE"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, code = http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrCancelled):
		status, code = http.StatusConflict, "CANCELLED"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code, "detail": err.Error()})
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.RateLimiter == nil || s.RateLimitRequests <= 0 {
			c.Next()
			return
		}
		key := "client:" + c.ClientIP() + ":path:" + c.FullPath()
		decision, err := s.RateLimiter.Allow(c.Request.Context(), key, s.RateLimitRequests, s.RateLimitWindow)
		if err != nil {
			// Fail open; the limiter is protective, not load-bearing.
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "RATE_LIMITED"})
			return
		}
		c.Next()
	}
}

