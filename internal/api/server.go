package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/triagecore/triagecore/internal/access"
	"github.com/triagecore/triagecore/internal/metrics"
	"github.com/triagecore/triagecore/internal/triage"
	"github.com/triagecore/triagecore/pkg/models"
)

// Server represents the API server
type Server struct {
	echo       *echo.Echo
	port       int
	svc        *triage.Service
	gate       *access.Gate
	aggregator *metrics.Aggregator
}

// NewServer creates a new API server
func NewServer(port int, svc *triage.Service, gate *access.Gate, aggregator *metrics.Aggregator, registry *prometheus.Registry, jwtSecret []byte) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:       e,
		port:       port,
		svc:        svc,
		gate:       gate,
		aggregator: aggregator,
	}

	server.setupRoutes(registry, jwtSecret)

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes(registry *prometheus.Registry, jwtSecret []byte) {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// API v1 group, all routes require an authenticated principal
	v1 := s.echo.Group("/api/v1")
	v1.Use(RequireAuth(jwtSecret))

	v1.POST("/conversations/:id/messages", s.postMessage)
	v1.GET("/conversations/:id", s.getConversation)
	v1.PUT("/conversations/:id/customer", s.putCustomer)

	v1.GET("/approvals/pending", s.listPendingApprovals)
	v1.POST("/approvals/:id/approve", s.approveDraft)
	v1.POST("/approvals/:id/reject", s.rejectDraft)

	v1.GET("/insights", s.getInsights)
	v1.GET("/stats/routing", s.getRoutingStats)
	v1.GET("/stats/escalations", s.getEscalationStats)
}

// authorize runs a gate check for the request principal and converts a denial
// into the HTTP error the handler should return.
func (s *Server) authorize(c echo.Context, permission string) (*models.Principal, error) {
	principal := GetPrincipal(c)
	d := s.gate.Authorize(c.Request().Context(), principal, permission)
	if s.aggregator != nil {
		if d.Granted {
			s.aggregator.ObserveAudit(models.AuditGranted)
		} else {
			s.aggregator.ObserveAudit(models.AuditDenied)
		}
	}
	if !d.Granted {
		return nil, echo.NewHTTPError(http.StatusForbidden, d.Reason)
	}
	return principal, nil
}

// Start begins the API server
func (s *Server) Start() error {
	// Start server in a goroutine
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
