// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, caller identity, idempotency, and
// rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/hr-backoffice/docs"
	"github.com/tbourn/hr-backoffice/internal/config"
	"github.com/tbourn/hr-backoffice/internal/diagram"
	"github.com/tbourn/hr-backoffice/internal/http/handlers"
	"github.com/tbourn/hr-backoffice/internal/http/middleware"
	"github.com/tbourn/hr-backoffice/internal/intent"
	"github.com/tbourn/hr-backoffice/internal/llm"
	"github.com/tbourn/hr-backoffice/internal/repo"
	"github.com/tbourn/hr-backoffice/internal/services"
	"github.com/tbourn/hr-backoffice/internal/session"
)

// Deps are the collaborators RegisterRoutes cannot derive from the database
// and config alone. Sessions and Tokens are required; a nil Classifier
// disables the structure short-circuit and a nil Renderer makes diagrams
// fail with 502.
type Deps struct {
	Sessions   session.Store
	Classifier intent.Classifier
	Tokens     llm.TokenCounter
	Completer  llm.Completer
	Renderer   diagram.Renderer
}

// corsHeaders are the request headers browsers may send cross-origin.
var corsHeaders = []string{
	"Origin", "Content-Type", "Accept", "Authorization",
	middleware.HeaderUserID, middleware.HeaderUserName, middleware.HeaderAdminToken,
	middleware.HeaderIdempotencyKey, "If-None-Match",
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), identity,
// idempotency and rate limiting, CORS and security headers, health, metrics
// and docs endpoints, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RequestLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip (never for /metrics)
//  8. Identity: X-User-ID / X-User-Name → context + users table
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay)
//  11. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RequestLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderUserName},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression; Prometheus negotiates its own encoding
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 8) Caller identity, recorded in the users table when a name is sent
	r.Use(middleware.Identity(func(ctx context.Context, id, username string) error {
		return repo.UpsertUser(ctx, db, id, username)
	}))

	// 9) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{
		MaxLen: 200,
		Lookup: func(ctx context.Context, ref middleware.IdempotencyRef, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, db, ref.User, ref.Scope, ref.Key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		},
	}))

	// 10) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter("global", cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 11) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"},
			AllowCredentials: true, // the chat session cookie must travel cross-origin
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	secOpts := middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}
	r.Use(middleware.SecurityHeaders(secOpts))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs (Swagger UI needs inline scripts, so it stays outside the strict CSP)
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db and the assistant collaborators
	unitSvc := &services.UnitService{
		DB:       db,
		MaxDepth: cfg.MaxUnitDepth,
		Renderer: deps.Renderer,
	}
	sessSvc := &services.ChatSessionService{DB: db}
	asstSvc := &services.AssistantService{
		DB:             db,
		Sessions:       sessSvc,
		Units:          unitSvc,
		Classifier:     deps.Classifier,
		Tokens:         deps.Tokens,
		Completer:      deps.Completer,
		MaxInputTokens: cfg.AI.MaxInputTokens,
		HistoryPairs:   cfg.AI.HistoryPairs,
		MaxPromptRunes: cfg.AI.MaxMessageRunes,
	}
	h := handlers.New(unitSvc, sessSvc, asstSvc, handlers.Options{
		DB:              db,
		IdempotencyTTL:  cfg.IdempotencyTTL,
		MaxMessageRunes: cfg.AI.MaxMessageRunes,
	})

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	secOpts.ContentSecurityPolicy = middleware.DefaultCSP
	api.Use(middleware.SecurityHeaders(secOpts))
	{
		// Structural units
		api.POST("/units", h.CreateUnit)
		api.GET("/units", h.ListUnits)
		api.GET("/units/outline", h.UnitOutline)
		api.GET("/units/:id", h.GetUnit)
		api.PATCH("/units/:id", h.PatchUnit)
		api.PUT("/units/:id", h.PutUnit)
		api.DELETE("/units/:id", h.DeleteUnit)
		api.GET("/units/:id/history", h.UnitHistory)
		api.GET("/units/:id/diagram", h.UnitDiagram)

		// Assistant; every prompt may cost a completion call
		chatRL := middleware.NewRateLimiter("chat", cfg.AI.ChatRateRPS, cfg.AI.ChatRateBurst, middleware.KeyByUserOrIP())
		chat := api.Group("/chat", middleware.Session(middleware.SessionOptions{
			Store:  deps.Sessions,
			TTL:    cfg.Session.TTL,
			Secure: cfg.Session.CookieSecure,
		}))
		chat.POST("", chatRL.Handler(), h.Chat)
		chat.GET("/history", h.ChatHistory)
		chat.POST("/reset", h.ResetChat)
		chat.GET("/sessions", h.ListSessions)
		chat.GET("/sessions/:id/history", h.SessionHistory)
		chat.PATCH("/sessions/:id", h.RenameSession)

		// Maintenance; absent unless an admin token is configured
		if cfg.Security.AdminToken != "" {
			admin := api.Group("/admin", middleware.AdminToken(cfg.Security.AdminToken))
			admin.DELETE("/units/:id", h.HardDeleteUnit)
		}
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
