package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/triagecore/triagecore/internal/access"
	"github.com/triagecore/triagecore/internal/contextstore"
	"github.com/triagecore/triagecore/internal/triage"
	"github.com/triagecore/triagecore/pkg/models"
)

type postMessageRequest struct {
	Body      string `json:"body"`
	AuthToken string `json:"auth_token,omitempty"`
}

type approveRequest struct {
	FinalText string `json:"final_text,omitempty"`
}

func (s *Server) postMessage(c echo.Context) error {
	if _, err := s.authorize(c, access.PermConversationWrite); err != nil {
		return err
	}

	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Body == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message body required")
	}

	conversationID := c.Param("id")
	if req.AuthToken != "" {
		s.svc.SetAuthToken(conversationID, req.AuthToken)
	}

	result, err := s.svc.ProcessMessage(c.Request().Context(), conversationID, req.Body)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) getConversation(c echo.Context) error {
	if _, err := s.authorize(c, access.PermConversationRead); err != nil {
		return err
	}

	snapshot, err := s.svc.Conversation(c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (s *Server) putCustomer(c echo.Context) error {
	if _, err := s.authorize(c, access.PermConversationWrite); err != nil {
		return err
	}

	var customer models.Customer
	if err := c.Bind(&customer); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	s.svc.SetCustomer(c.Param("id"), customer)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listPendingApprovals(c echo.Context) error {
	if _, err := s.authorize(c, access.PermApproveAction); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pending": s.svc.PendingDrafts(),
	})
}

func (s *Server) approveDraft(c echo.Context) error {
	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rec, err := s.svc.Approve(c.Request().Context(), GetPrincipal(c), c.Param("id"), req.FinalText)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) rejectDraft(c echo.Context) error {
	if err := s.svc.Reject(c.Request().Context(), GetPrincipal(c), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getInsights(c echo.Context) error {
	insights, err := s.svc.Insights(c.Request().Context(), GetPrincipal(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, insights)
}

func (s *Server) getRoutingStats(c echo.Context) error {
	if _, err := s.authorize(c, access.PermMetricsRead); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.aggregator.RoutingStats())
}

func (s *Server) getEscalationStats(c echo.Context) error {
	if _, err := s.authorize(c, access.PermMetricsRead); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.aggregator.EscalationStats())
}

// toHTTPError maps service errors onto HTTP status codes.
func toHTTPError(err error) error {
	var denied triage.ErrDenied
	switch {
	case errors.As(err, &denied):
		return echo.NewHTTPError(http.StatusForbidden, denied.Reason)
	case errors.Is(err, triage.ErrPendingNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "pending draft not found")
	case errors.Is(err, contextstore.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
