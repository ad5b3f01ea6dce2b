// Package api exposes the HTTP surface: REST endpoints, the websocket
// upgrade, and operational probes.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cosmicwatch/neo-watch-service/internal/auth"
	"github.com/cosmicwatch/neo-watch-service/internal/domain"
)

// ReadService serves the dashboard read models.
type ReadService interface {
	Asteroids(ctx context.Context) ([]domain.AsteroidSummary, error)
	Stats(ctx context.Context) (domain.Stats, error)
	RiskAnalysis(ctx context.Context, asteroidID int64) (domain.RiskAnalysis, error)
}

// IngestRunner triggers one ingestion pass on demand.
type IngestRunner interface {
	Run(ctx context.Context) (domain.IngestResult, error)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
}

// WatchlistStore persists per-user watchlists. Add reports whether a new
// entry was created.
type WatchlistStore interface {
	AddToWatchlist(ctx context.Context, userID, asteroidID int64) (bool, error)
	Watchlist(ctx context.Context, userID int64) ([]domain.WatchlistEntry, error)
	RemoveFromWatchlist(ctx context.Context, userID, asteroidID int64) error
}

// Pinger reports backing-store reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the route table to its collaborators.
type Server struct {
	reader    ReadService
	ingestor  IngestRunner
	users     UserStore
	watchlist WatchlistStore
	hasher    *auth.Hasher
	tokens    *auth.TokenProvider
	pinger    Pinger
	wsHandler http.HandlerFunc
	logger    *slog.Logger

	engine *gin.Engine
}

// NewServer builds the router. The returned Server is an http.Handler.
func NewServer(
	reader ReadService,
	ingestor IngestRunner,
	users UserStore,
	watchlist WatchlistStore,
	hasher *auth.Hasher,
	tokens *auth.TokenProvider,
	pinger Pinger,
	wsHandler http.HandlerFunc,
	logger *slog.Logger,
) *Server {
	s := &Server{
		reader:    reader,
		ingestor:  ingestor,
		users:     users,
		watchlist: watchlist,
		hasher:    hasher,
		tokens:    tokens,
		pinger:    pinger,
		wsHandler: wsHandler,
		logger:    logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/readyz", s.handleReadyz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", gin.WrapF(s.wsHandler))

	apiGroup := engine.Group("/api")
	{
		apiGroup.POST("/register", s.handleRegister)
		apiGroup.POST("/login", s.handleLogin)
		apiGroup.GET("/asteroids", s.handleAsteroids)
		apiGroup.GET("/stats", s.handleStats)
		apiGroup.GET("/risk-analysis/:id", s.handleRiskAnalysis)
		apiGroup.GET("/fetch-asteroids", s.handleFetchAsteroids)

		authed := apiGroup.Group("", s.requireAuth)
		authed.GET("/watchlist", s.handleWatchlist)
		authed.POST("/watchlist", s.handleWatchlistAdd)
		authed.DELETE("/watchlist/:id", s.handleWatchlistRemove)
	}

	s.engine = engine
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReadyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

type registerRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "full_name, a valid email, and a password of at least 8 characters are required"})
		return
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	user, err := s.users.CreateUser(c.Request.Context(), domain.User{
		FullName:     strings.TrimSpace(req.FullName),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         "user",
		Verified:     true,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		s.storageFailure(c, "register", err)
		return
	}

	s.respondWithToken(c, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	user, err := s.users.GetUserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		s.storageFailure(c, "login", err)
		return
	}
	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	s.respondWithToken(c, http.StatusOK, user)
}

func (s *Server) respondWithToken(c *gin.Context, status int, user domain.User) {
	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		s.logger.Error("token issuance failed", "user_id", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}
	c.JSON(status, gin.H{"token": token, "user": user})
}

func (s *Server) handleAsteroids(c *gin.Context) {
	asteroids, err := s.reader.Asteroids(c.Request.Context())
	if err != nil {
		s.storageFailure(c, "list asteroids", err)
		return
	}
	c.JSON(http.StatusOK, asteroids)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.reader.Stats(c.Request.Context())
	if err != nil {
		s.storageFailure(c, "stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleRiskAnalysis(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asteroid id must be an integer"})
		return
	}

	analysis, err := s.reader.RiskAnalysis(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "asteroid not found"})
			return
		}
		s.storageFailure(c, "risk analysis", err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// handleFetchAsteroids runs one ingestion pass inline and reports its result.
// A pass already in flight is a conflict, not a queue.
func (s *Server) handleFetchAsteroids(c *gin.Context) {
	result, err := s.ingestor.Run(c.Request.Context())
	switch {
	case errors.Is(err, domain.ErrIngestRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "an ingestion run is already in progress"})
	case isUpstreamError(err):
		s.logger.Error("manual ingest failed upstream", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "feed fetch failed"})
	case err != nil:
		s.storageFailure(c, "manual ingest", err)
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Fetch complete", "result": result})
	}
}

func isUpstreamError(err error) bool {
	var fetchErr *domain.FetchError
	var parseErr *domain.ParseError
	return errors.As(err, &fetchErr) || errors.As(err, &parseErr)
}

const claimsContextKey = "authClaims"

// requireAuth admits only requests bearing a valid access token.
func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	claims, err := s.tokens.Validate(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	c.Set(claimsContextKey, claims)
	c.Next()
}

func sessionClaims(c *gin.Context) *auth.Claims {
	return c.MustGet(claimsContextKey).(*auth.Claims)
}

func (s *Server) handleWatchlist(c *gin.Context) {
	entries, err := s.watchlist.Watchlist(c.Request.Context(), sessionClaims(c).UserID)
	if err != nil {
		s.storageFailure(c, "list watchlist", err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

type watchlistAddRequest struct {
	AsteroidID int64 `json:"asteroid_id" binding:"required"`
}

func (s *Server) handleWatchlistAdd(c *gin.Context) {
	var req watchlistAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asteroid_id is required"})
		return
	}

	added, err := s.watchlist.AddToWatchlist(c.Request.Context(), sessionClaims(c).UserID, req.AsteroidID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "asteroid not found"})
			return
		}
		s.storageFailure(c, "add watchlist", err)
		return
	}
	if !added {
		c.JSON(http.StatusOK, gin.H{"message": "already in watchlist"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "added to watchlist"})
}

func (s *Server) handleWatchlistRemove(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asteroid id must be an integer"})
		return
	}

	err = s.watchlist.RemoveFromWatchlist(c.Request.Context(), sessionClaims(c).UserID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not on watchlist"})
			return
		}
		s.storageFailure(c, "remove watchlist", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed from watchlist"})
}

func (s *Server) storageFailure(c *gin.Context, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
}
