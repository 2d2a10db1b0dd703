package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bidagents/bidagents-api/internal/agents"
	"github.com/bidagents/bidagents-api/internal/auth"
	"github.com/bidagents/bidagents-api/internal/db"
	"github.com/bidagents/bidagents-api/internal/models"
)

// Capability handlers. Every one follows the same sequence: authenticate
// (middleware), validate input, check the lifecycle precondition, proxy to
// the agent backend, then apply the status transition and audit record here.
// Status writes happen in this layer only; the backend never touches the
// bid store.

type discoveryRequest struct {
	Keywords   string   `json:"keywords"`
	NAICSCodes []string `json:"naicsCodes"`
	Geography  string   `json:"geography"`
	Portals    []string `json:"portals"`
}

func (s *Server) handleRunDiscovery(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var req discoveryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if strings.TrimSpace(req.Keywords) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing keywords"})
	}

	s.setAgentState(c, userID, agents.CapDiscovery, "running", "Searching procurement portals...")

	result, err := s.Agents.RunDiscovery(ctx, agents.DiscoveryRequest{
		UserID:     userID.String(),
		Keywords:   req.Keywords,
		NAICSCodes: req.NAICSCodes,
		Geography:  req.Geography,
		Portals:    req.Portals,
	})
	if err != nil {
		s.setAgentState(c, userID, agents.CapDiscovery, "failed", "Discovery run failed")
		return s.agentError(c, "Discovery", err)
	}

	bids := make([]models.Bid, 0, len(result.Bids))
	for _, d := range result.Bids {
		bids = append(bids, models.Bid{
			Title:          s.cleanText(d.Title),
			Agency:         s.cleanText(d.Agency),
			Location:       s.cleanText(d.Location),
			Description:    s.cleanText(d.Description),
			Deadline:       parseDeadline(d.Deadline),
			Portal:         s.cleanText(d.Portal),
			SourceURL:      strings.TrimSpace(d.SourceURL),
			RelevanceScore: clampScore(d.RelevanceScore),
		})
	}

	saved, err := s.Store.InsertDiscoveredBids(ctx, userID, bids)
	if err != nil {
		c.Logger().Errorf("Failed to store discovered bids: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to store discovered bids"})
	}

	message := result.Message
	if message == "" {
		message = fmt.Sprintf("Discovery found %d opportunities", len(saved))
	}

	s.appendActivity(c, models.Activity{
		UserID:  userID,
		Type:    models.ActivityDiscovery,
		Message: message,
	})
	s.setAgentState(c, userID, agents.CapDiscovery, "completed", message)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"bids":    saved,
		"message": message,
	})
}

func (s *Server) handleListBids(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	bids, err := s.Store.ListBids(c.Request().Context(), userID, 50)
	if err != nil {
		c.Logger().Errorf("Failed to list bids: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch bids"})
	}

	if bids == nil {
		bids = []models.Bid{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"bids": bids})
}

type analyzeRequest struct {
	BidID string `json:"bidId"`
}

func (s *Server) handleAnalyze(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	bidID, errResp := s.requireBid(c, userID, req.BidID, models.StatusNew)
	if errResp != nil {
		return errResp
	}

	result, err := s.Agents.RunAnalysis(ctx, agents.AnalysisRequest{
		UserID: userID.String(),
		BidID:  bidID.String(),
	})
	if err != nil {
		s.setAgentState(c, userID, agents.CapAnalysis, "failed", "Document analysis failed")
		return s.agentError(c, "Analysis", err)
	}

	patch := db.StatusPatch{
		FromStatus:   models.StatusNew,
		ToStatus:     models.StatusAnalyzed,
		Requirements: result.Requirements,
	}
	if _, err := s.Store.AdvanceBidStatus(ctx, userID, bidID, patch); err != nil {
		return s.transitionError(c, err)
	}

	message := result.Message
	if message == "" {
		message = "Document analysis completed"
	}

	s.appendActivity(c, models.Activity{
		UserID:  userID,
		Type:    models.ActivityAnalysis,
		Message: message,
		BidID:   &bidID,
	})
	s.setAgentState(c, userID, agents.CapAnalysis, "completed", message)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
	})
}

type prefillRequest struct {
	BidID       string            `json:"bidId"`
	CompanyData map[string]string `json:"companyData"`
}

func (s *Server) handlePrefill(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var req prefillRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	bidID, errResp := s.requireBid(c, userID, req.BidID, models.StatusAnalyzed)
	if errResp != nil {
		return errResp
	}

	result, err := s.Agents.RunPrefill(ctx, agents.PrefillRequest{
		UserID:      userID.String(),
		BidID:       bidID.String(),
		CompanyData: req.CompanyData,
	})
	if err != nil {
		s.setAgentState(c, userID, agents.CapPrefill, "failed", "Form pre-fill failed")
		return s.agentError(c, "Prefill", err)
	}

	patch := db.StatusPatch{
		FromStatus:    models.StatusAnalyzed,
		ToStatus:      models.StatusPreFilled,
		PreFilledData: result.PreFilledData,
		PreFilledPath: result.PreFilledPath,
	}
	if _, err := s.Store.AdvanceBidStatus(ctx, userID, bidID, patch); err != nil {
		return s.transitionError(c, err)
	}

	message := result.Message
	if message == "" {
		message = "Bid forms pre-filled"
	}

	s.appendActivity(c, models.Activity{
		UserID:  userID,
		Type:    models.ActivityPrefill,
		Message: message,
		BidID:   &bidID,
	})
	s.setAgentState(c, userID, agents.CapPrefill, "completed", message)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"message":       message,
		"preFilledPath": result.PreFilledPath,
	})
}

type submitRequest struct {
	BidID            string `json:"bidId"`
	SubmissionMethod string `json:"submissionMethod"`
	SubmissionEmail  string `json:"submissionEmail"`
}

func (s *Server) handleSubmit(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	switch req.SubmissionMethod {
	case "email":
		if strings.TrimSpace(req.SubmissionEmail) == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing submissionEmail"})
		}
	case "portal":
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid submissionMethod"})
	}

	bidID, errResp := s.requireBid(c, userID, req.BidID, models.StatusPreFilled)
	if errResp != nil {
		return errResp
	}

	result, err := s.Agents.RunSubmit(ctx, agents.SubmitRequest{
		UserID:           userID.String(),
		BidID:            bidID.String(),
		SubmissionMethod: req.SubmissionMethod,
		SubmissionEmail:  req.SubmissionEmail,
	})
	if err != nil {
		s.setAgentState(c, userID, agents.CapSubmit, "failed", "Bid submission failed")
		return s.agentError(c, "Submit", err)
	}

	patch := db.StatusPatch{
		FromStatus:       models.StatusPreFilled,
		ToStatus:         models.StatusSubmitted,
		SubmissionMethod: req.SubmissionMethod,
		SubmissionEmail:  req.SubmissionEmail,
	}
	if _, err := s.Store.AdvanceBidStatus(ctx, userID, bidID, patch); err != nil {
		return s.transitionError(c, err)
	}

	message := result.Message
	if message == "" {
		message = fmt.Sprintf("Bid submitted via %s", req.SubmissionMethod)
	}

	s.appendActivity(c, models.Activity{
		UserID:  userID,
		Type:    models.ActivitySubmission,
		Message: message,
		BidID:   &bidID,
	})
	s.setAgentState(c, userID, agents.CapSubmit, "completed", message)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
	})
}

// requireBid validates a caller-supplied bid ID, confirms the caller owns the
// bid, and checks the lifecycle precondition. On failure it writes the error
// response and returns it; on success errResp is nil.
func (s *Server) requireBid(c echo.Context, userID uuid.UUID, rawID, wantStatus string) (uuid.UUID, error) {
	if strings.TrimSpace(rawID) == "" {
		return uuid.Nil, c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing bidId"})
	}
	bidID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid bidId"})
	}

	bid, err := s.Store.GetBid(c.Request().Context(), userID, bidID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return uuid.Nil, c.JSON(http.StatusNotFound, map[string]string{"error": "Bid not found"})
		}
		c.Logger().Errorf("Failed to fetch bid %s: %v", bidID, err)
		return uuid.Nil, c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch bid"})
	}

	status := bid.Status
	if status == "ready" {
		// Legacy alias some clients still send back; stored bids never use it.
		status = models.StatusPreFilled
	}
	if status != wantStatus {
		return uuid.Nil, c.JSON(http.StatusConflict, map[string]string{
			"error":   "Invalid bid status",
			"details": fmt.Sprintf("bid is %q, expected %q", bid.Status, wantStatus),
		})
	}

	return bidID, nil
}

// agentError maps a failed backend call to the HTTP error contract. The raw
// downstream detail goes to the server log; the caller gets the normalized
// tag and the downstream text, never a stack trace.
func (s *Server) agentError(c echo.Context, action string, err error) error {
	if errors.Is(err, agents.ErrTimeout) {
		c.Logger().Errorf("%s agent timed out: %v", action, err)
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error":   action + " timed out",
			"details": err.Error(),
		})
	}

	var dsErr *agents.DownstreamError
	if errors.As(err, &dsErr) {
		c.Logger().Errorf("%s agent failed: %v", action, dsErr)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error":   action + " failed",
			"details": dsErr.Error(),
		})
	}

	c.Logger().Errorf("%s failed: %v", action, err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": action + " failed"})
}

// transitionError maps a failed status write. A wrong-status result here
// means a concurrent request won the transition race after our precondition
// check passed.
func (s *Server) transitionError(c echo.Context, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Bid not found"})
	}
	var wsErr *db.WrongStatusError
	if errors.As(err, &wsErr) {
		return c.JSON(http.StatusConflict, map[string]string{
			"error":   "Invalid bid status",
			"details": wsErr.Error(),
		})
	}
	c.Logger().Errorf("Failed to update bid status: %v", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to update bid"})
}

// appendActivity is best effort: the primary mutation has already landed, so
// a failed audit write is logged and swallowed.
func (s *Server) appendActivity(c echo.Context, a models.Activity) {
	if err := s.Store.AppendActivity(c.Request().Context(), a); err != nil {
		c.Logger().Errorf("Failed to append activity: %v", err)
	}
}

// setAgentState is best effort for the same reason.
func (s *Server) setAgentState(c echo.Context, userID uuid.UUID, capability, status, message string) {
	if err := s.Store.SetAgentState(c.Request().Context(), userID, capability, status, message); err != nil {
		c.Logger().Errorf("Failed to record agent state: %v", err)
	}
}

// cleanText sanitizes agent-returned text. Discovery results originate from
// scraped portal pages, so titles and descriptions can carry markup.
func (s *Server) cleanText(text string) string {
	return strings.Join(strings.Fields(s.sanitizer.Sanitize(text)), " ")
}

func parseDeadline(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
