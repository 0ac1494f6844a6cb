// Package webhook ingests trading alerts over HTTP. Every request walks a
// staged pipeline: content-type check, body size cap, HMAC signature
// verification, per-IP rate limiting, duplicate suppression, normalization,
// then dispatch to the analysis orchestrator. A read-only API group exposes
// health, provider status, ingest counters and cached reports.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/metrics"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/provider"
)

// Dispatcher receives normalized alerts for analysis.
type Dispatcher interface {
	DispatchAlert(ctx context.Context, alert *Alert) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, alert *Alert) error

func (f DispatcherFunc) DispatchAlert(ctx context.Context, alert *Alert) error {
	return f(ctx, alert)
}

// StatusSource exposes provider health snapshots for the read-only API.
type StatusSource interface {
	Status() []provider.ProviderStatus
}

// ReportSource serves the most recent cached report for a symbol.
type ReportSource interface {
	LatestReport(ctx context.Context, symbol string) (json.RawMessage, bool, error)
}

// Config wires the ingest server. Secret is required; everything else has
// working defaults.
type Config struct {
	Host         string
	Port         int
	Path         string
	Secret       string
	MaxBodyBytes int64
	RateLimit    RateLimitConfig
	DedupWindow  time.Duration
	AllowOrigins []string

	Dispatcher Dispatcher
	Providers  StatusSource
	Reports    ReportSource
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = "/webhook/tradingview"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = time.Minute
	}
	if len(c.AllowOrigins) == 0 {
		c.AllowOrigins = []string{"*"}
	}
}

// Server is the webhook ingest HTTP server.
type Server struct {
	router     *gin.Engine
	cfg        Config
	addr       string
	server     *http.Server
	limiter    *rateLimiter
	dedup      *deduper
	stats      *statsRecorder
	metrics    *webhookMetrics
	dispatcher Dispatcher
	providers  StatusSource
	reports    ReportSource
}

// NewServer builds the router and middleware chain. The shared secret is
// mandatory: without it every signature would fail open or closed, so
// construction refuses to proceed.
func NewServer(cfg Config) (*Server, error) {
	cfg.applyDefaults()
	if cfg.Secret == "" {
		return nil, market.NewConfigurationError("webhook secret is required")
	}
	if cfg.Dispatcher == nil {
		return nil, market.NewConfigurationError("webhook dispatcher is required")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(metrics.GinMiddleware())

	s := &Server{
		router:     router,
		cfg:        cfg,
		addr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		limiter:    newRateLimiter(cfg.RateLimit),
		dedup:      newDeduper(cfg.DedupWindow),
		stats:      newStatsRecorder(),
		metrics:    initMetrics(),
		dispatcher: cfg.Dispatcher,
		providers:  cfg.Providers,
		reports:    cfg.Reports,
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes registers the ingest endpoint and the read-only API group.
func (s *Server) setupRoutes() {
	s.router.POST(s.cfg.Path, s.handleWebhook)

	api := s.router.Group("/api/v1")
	api.Use(cors.New(cors.Config{
		AllowOrigins:  s.cfg.AllowOrigins,
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	{
		api.GET("/health", s.handleHealth)
		api.GET("/providers", s.handleProviders)
		api.GET("/webhook/stats", s.handleStats)
		api.GET("/report/:symbol", s.handleReport)
	}
}

// Start runs the HTTP server until Stop or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Str("path", s.cfg.Path).Msg("Starting webhook server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start webhook server: %w", err)
	}
	return nil
}

// Stop gracefully drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping webhook server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop webhook server: %w", err)
		}
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Stats exposes a snapshot of the ingest counters.
func (s *Server) Stats() Stats { return s.stats.Snapshot() }

// handleWebhook walks the ingest pipeline. Every terminal outcome updates the
// counters and the latency average.
func (s *Server) handleWebhook(c *gin.Context) {
	start := time.Now()
	s.stats.IncTotal()
	defer func() {
		d := time.Since(start)
		s.stats.ObserveProcessing(d)
		s.metrics.duration.Observe(d.Seconds())
	}()

	if c.ContentType() != "application/json" {
		s.rejectInvalid(c, http.StatusBadRequest, market.CodeInvalidContentType,
			"content type must be application/json")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		s.stats.IncProcessingError()
		s.metrics.recordOutcome(OutcomeError)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to read request body",
			"code":  market.CodeInternalError,
		})
		return
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		s.rejectInvalid(c, http.StatusRequestEntityTooLarge, market.CodeRequestTooLarge,
			fmt.Sprintf("body exceeds %d bytes", s.cfg.MaxBodyBytes))
		return
	}

	if !verifySignature(body, c.GetHeader("X-Signature"), s.cfg.Secret) {
		s.rejectInvalid(c, http.StatusBadRequest, market.CodeInvalidSignature,
			"signature verification failed")
		return
	}

	ip := c.ClientIP()
	if allowed, retry := s.limiter.Allow(ip); !allowed {
		s.stats.IncRateLimited()
		s.metrics.recordOutcome(OutcomeRateLimited)
		retrySecs := int(retry.Seconds()) + 1
		c.Header("Retry-After", fmt.Sprintf("%d", retrySecs))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":      "rate limit exceeded",
			"code":       market.CodeRateLimitExceeded,
			"retryAfter": retrySecs,
		})
		return
	}

	raw, err := decodeAlertBody(body)
	if err != nil {
		s.rejectInvalid(c, http.StatusBadRequest, market.CodeInvalidJSON, "malformed JSON payload")
		return
	}

	if s.dedup.Seen(dedupKey(raw)) {
		s.stats.IncDuplicate()
		s.metrics.recordOutcome(OutcomeDuplicate)
		c.JSON(http.StatusOK, gin.H{
			"status":         "duplicate",
			"message":        "alert already received",
			"processingTime": msSince(start),
		})
		return
	}

	alert, err := normalizeAlert(raw, start)
	if err != nil {
		s.rejectInvalid(c, http.StatusBadRequest, market.CodeInvalidFormat, err.Error())
		return
	}

	if err := s.dispatcher.DispatchAlert(c.Request.Context(), alert); err != nil {
		s.stats.IncProcessingError()
		s.metrics.recordOutcome(OutcomeError)
		log.Error().Err(err).Str("alert_id", alert.ID).Str("symbol", alert.Symbol).
			Msg("Alert dispatch failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "alert processing failed",
			"code":  market.CodeInternalError,
		})
		return
	}

	s.stats.IncValid()
	s.metrics.recordOutcome(OutcomeValid)
	log.Info().
		Str("alert_id", alert.ID).
		Str("symbol", alert.Symbol).
		Str("type", alert.Type).
		Str("client_ip", ip).
		Msg("Alert accepted")

	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"alertId":        alert.ID,
		"processingTime": msSince(start),
	})
}

// rejectInvalid is the common terminal for 4xx validation failures.
func (s *Server) rejectInvalid(c *gin.Context, status int, code, msg string) {
	s.stats.IncInvalid()
	s.metrics.recordOutcome(OutcomeInvalid)
	c.JSON(status, gin.H{"error": msg, "code": code})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleProviders(c *gin.Context) {
	if s.providers == nil {
		c.JSON(http.StatusOK, gin.H{"providers": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": s.providers.Status()})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleReport(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	if s.reports == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "report source not configured",
			"code":  market.CodeMissingData,
		})
		return
	}

	payload, ok, err := s.reports.LatestReport(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "report lookup failed",
			"code":  market.CodeInternalError,
		})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("no report for %s", symbol),
			"code":  market.CodeMissingData,
		})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// verifySignature checks the HMAC-SHA256 hex digest of the raw body against
// the X-Signature header, tolerating the conventional sha256= prefix.
// Comparison is constant-time.
func verifySignature(body []byte, header, secret string) bool {
	if header == "" {
		return false
	}
	sigHex := strings.TrimPrefix(header, "sha256=")
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		logEvent := log.Info().
			Str("method", method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("Webhook request")
	}
}
