package api

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/microcosm-cc/bluemonday"

	"github.com/bidagents/bidagents-api/internal/agents"
	"github.com/bidagents/bidagents-api/internal/auth"
	"github.com/bidagents/bidagents-api/internal/db"
	"github.com/bidagents/bidagents-api/internal/models"
)

// BidStore is the slice of the database store the handlers use.
type BidStore interface {
	ListBids(ctx context.Context, userID uuid.UUID, limit int) ([]models.Bid, error)
	GetBid(ctx context.Context, userID, bidID uuid.UUID) (*models.Bid, error)
	InsertDiscoveredBids(ctx context.Context, userID uuid.UUID, bids []models.Bid) ([]models.Bid, error)
	SaveBid(ctx context.Context, userID uuid.UUID, bid models.Bid) (*models.Bid, error)
	AdvanceBidStatus(ctx context.Context, userID, bidID uuid.UUID, patch db.StatusPatch) (*models.Bid, error)
	AppendActivity(ctx context.Context, a models.Activity) error
	ListActivities(ctx context.Context, userID uuid.UUID, limit int) ([]models.Activity, error)
	CreateProfile(ctx context.Context, p models.UserProfile) (*models.UserProfile, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
	GetStats(ctx context.Context, userID uuid.UUID) (map[string]interface{}, error)
	SetAgentState(ctx context.Context, userID uuid.UUID, capability, status, message string) error
	GetAgentStates(ctx context.Context, userID uuid.UUID, capabilities []string) (map[string]models.AgentState, error)
}

// AgentRunner is the outbound side: the four backend agent capabilities.
type AgentRunner interface {
	RunDiscovery(ctx context.Context, req agents.DiscoveryRequest) (*agents.DiscoveryResult, error)
	RunAnalysis(ctx context.Context, req agents.AnalysisRequest) (*agents.AnalysisResult, error)
	RunPrefill(ctx context.Context, req agents.PrefillRequest) (*agents.PrefillResult, error)
	RunSubmit(ctx context.Context, req agents.SubmitRequest) (*agents.SubmitResult, error)
}

type Server struct {
	Store       BidStore
	Agents      AgentRunner
	AuthService *auth.Service
	Echo        *echo.Echo
	DB          *pgxpool.Pool

	capabilities []string
	sanitizer    *bluemonday.Policy
}

func NewServer(pool *pgxpool.Pool) (*Server, error) {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
	allowedOrigins := []string{"http://localhost:3000"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	agentClient, err := agents.NewClient(os.Getenv("BACKEND_API_URL"))
	if err != nil {
		return nil, err
	}

	s := &Server{
		DB:           pool,
		Store:        db.NewStore(pool),
		Agents:       agentClient,
		AuthService:  auth.NewService(pool),
		Echo:         e,
		capabilities: agentClient.Registry.IDs(),
		sanitizer:    bluemonday.StrictPolicy(),
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Agent capability surface
	ag := s.Echo.Group("/agents")
	ag.Use(auth.Middleware)
	ag.POST("/discovery", s.handleRunDiscovery)
	ag.GET("/discovery", s.handleListBids)
	ag.POST("/analyze", s.handleAnalyze)
	ag.POST("/prefill", s.handlePrefill)
	ag.POST("/submit", s.handleSubmit)

	// Protected dashboard routes
	protected := api.Group("")
	protected.Use(auth.Middleware)
	protected.GET("/activities", s.handleListActivities)
	protected.POST("/bids", s.handleSaveBid)
	protected.POST("/onboarding", s.handleCompleteOnboarding)
	protected.GET("/onboarding", s.handleGetProfile)
	protected.GET("/stats", s.handleGetStats)
	protected.GET("/agents/status", s.handleAgentStatus)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Email and password are required"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrUserExists {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		c.Logger().Errorf("Signup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Signup failed"})
	}

	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrInvalidCreds {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		c.Logger().Errorf("Login failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Login failed"})
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListActivities(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	activities, err := s.Store.ListActivities(c.Request().Context(), userID, 50)
	if err != nil {
		c.Logger().Errorf("Failed to list activities: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch activities"})
	}

	if activities == nil {
		activities = []models.Activity{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"activities": activities})
}

func (s *Server) handleSaveBid(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var bid models.Bid
	if err := c.Bind(&bid); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if strings.TrimSpace(bid.Title) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing title"})
	}

	saved, err := s.Store.SaveBid(c.Request().Context(), userID, bid)
	if err != nil {
		if err == db.ErrNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Bid not found"})
		}
		c.Logger().Errorf("Failed to save bid: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save bid"})
	}

	return c.JSON(http.StatusOK, saved)
}

func (s *Server) handleCompleteOnboarding(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var profile models.UserProfile
	if err := c.Bind(&profile); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	profile.UserID = userID
	profile.Completed = true

	saved, err := s.Store.CreateProfile(c.Request().Context(), profile)
	if err != nil {
		c.Logger().Errorf("Failed to save profile: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to complete onboarding"})
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Onboarding complete",
		"profile": saved,
	})
}

func (s *Server) handleGetProfile(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	profile, err := s.Store.GetProfile(c.Request().Context(), userID)
	if err != nil {
		if err == db.ErrNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Profile not found"})
		}
		c.Logger().Errorf("Failed to fetch profile: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch profile"})
	}

	return c.JSON(http.StatusOK, profile)
}

func (s *Server) handleGetStats(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	stats, err := s.Store.GetStats(c.Request().Context(), userID)
	if err != nil {
		c.Logger().Errorf("Failed to compute stats: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch stats"})
	}

	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleAgentStatus(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	states, err := s.Store.GetAgentStates(c.Request().Context(), userID, s.capabilities)
	if err != nil {
		c.Logger().Errorf("Failed to fetch agent states: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch agent status"})
	}

	return c.JSON(http.StatusOK, states)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}
