package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tripsniper/tripsniper/internal/db"
	"github.com/tripsniper/tripsniper/internal/models"
	"github.com/tripsniper/tripsniper/internal/pipeline"
)

// freeTierDelay is how long offers stay hidden from free accounts after
// they become visible to premium ones.
const freeTierDelay = time.Hour

// ReadStore is the read side of batch persistence the API serves from.
type ReadStore interface {
	LatestBatch(ctx context.Context, selectorKey string) (*models.RunBatch, error)
	GetBatch(ctx context.Context, runID string) (*models.RunBatch, error)
	RecentRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
}

// Runner triggers pipeline runs; satisfied by *pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, sel models.Selector) (pipeline.RunOutcome, error)
}

type Server struct {
	Store    ReadStore
	Runner   Runner
	Selector models.Selector
	Echo     *echo.Echo

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func NewServer(store ReadStore, runner Runner, sel models.Selector) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
	allowedOrigins := []string{"http://localhost:4200"}
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
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "X-Admin-Secret"},
	}))

	s := &Server{
		Store:    store,
		Runner:   runner,
		Selector: sel,
		Echo:     e,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.GET("/offers", s.handleListOffers)
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)

	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/runs", s.handleTriggerRun)
	admin.GET("/admin/job/:id", s.handleJobStatus)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type offersResponse struct {
	RunID       string                           `json:"run_id"`
	SelectorKey string                           `json:"selector_key"`
	Outcome     models.Outcome                   `json:"outcome"`
	CompletedAt time.Time                        `json:"completed_at"`
	AgeSeconds  int64                            `json:"age_seconds"`
	Providers   map[string]models.ProviderStatus `json:"providers"`
	Offers      []models.ScoredOffer             `json:"offers"`
	Total       int                              `json:"total"`
}

// handleListOffers serves the latest published batch, filtered by query
// params. Free accounts see only offers whose visibility started at least
// an hour ago; a failed latest run never surfaces as an API error because
// failed runs publish nothing and the previous batch stays current.
func (s *Server) handleListOffers(c echo.Context) error {
	batch, err := s.Store.LatestBatch(c.Request().Context(), c.QueryParam("selector"))
	if err != nil {
		if errors.Is(err, db.ErrNoBatch) {
			return c.JSON(http.StatusOK, offersResponse{
				Offers:    []models.ScoredOffer{},
				Providers: map[string]models.ProviderStatus{},
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	limit := 50
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	filter := models.CategoryFilter{
		Locations: splitParam(c.QueryParam("location")),
	}
	if raw := c.QueryParam("max_price"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			filter.MaxPrice = parsed
		}
	}
	if raw := c.QueryParam("min_stars"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			filter.MinStars = parsed
		}
	}
	directOnly := c.QueryParam("direct_only") == "true" || c.QueryParam("direct_only") == "1"

	now := time.Now().UTC()
	visibleBefore := now
	if strings.EqualFold(c.QueryParam("account_type"), "free") {
		visibleBefore = now.Add(-freeTierDelay)
	}

	offers := make([]models.ScoredOffer, 0, limit)
	for _, offer := range batch.Offers {
		if offer.VisibleFrom.After(visibleBefore) {
			continue
		}
		if !filter.Matches(offer.Offer) {
			continue
		}
		if directOnly && (offer.Flight == nil || !offer.Flight.Direct) {
			continue
		}
		offers = append(offers, offer)
		if len(offers) == limit {
			break
		}
	}

	return c.JSON(http.StatusOK, offersResponse{
		RunID:       batch.RunID,
		SelectorKey: batch.SelectorKey,
		Outcome:     batch.Outcome,
		CompletedAt: batch.CompletedAt,
		AgeSeconds:  int64(now.Sub(batch.CompletedAt).Seconds()),
		Providers:   batch.Providers,
		Offers:      offers,
		Total:       len(offers),
	})
}

func (s *Server) handleListRuns(c echo.Context) error {
	limit := 20
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	runs, err := s.Store.RecentRuns(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"runs": runs, "total": len(runs)})
}

func (s *Server) handleGetRun(c echo.Context) error {
	batch, err := s.Store.GetBatch(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNoBatch) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, batch)
}

// handleTriggerRun starts one pipeline run in the background and returns
// 202 with a job id to poll. A run already in flight for the same selector
// maps to 409.
func (s *Server) handleTriggerRun(c echo.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "A pipeline run is already in progress",
			"job_id": job.ID,
		})
	}

	// context.WithoutCancel detaches from HTTP lifecycle but preserves
	// trace values. We add our own timeout for safety.
	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), 15*time.Minute,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()
		outcome, err := s.Runner.Run(jobCtx, s.Selector)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			log.Printf("[run-job %s] rejected: %v", jobID, err)
			return
		}
		if outcome.Err != nil {
			job.Status = "failed"
			job.Error = outcome.Err.Error()
			log.Printf("[run-job %s] failed: %v", jobID, outcome.Err)
			return
		}
		job.Status = "completed"
		result := map[string]interface{}{
			"outcome":   outcome.Outcome,
			"providers": outcome.Providers,
		}
		if outcome.Batch != nil {
			result["run_id"] = outcome.Batch.RunID
			result["offers"] = len(outcome.Batch.Offers)
		}
		job.Result = result
		log.Printf("[run-job %s] completed: %s", jobID, outcome.Outcome)
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Pipeline run started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/admin/job/%s", jobID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")
	s.jobMu.Lock()
	job := s.runningJob
	s.jobMu.Unlock()

	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	s.jobMu.Lock()
	resp := map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	s.jobMu.Unlock()

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		// Check X-Admin-Secret header or Bearer token
		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if authHeader[7:] == secret {
				return next(c)
			}
		}

		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}

		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		log.Print("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}

	return adminSecretRuntime, nil
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
