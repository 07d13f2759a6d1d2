// Command server runs the HR back-office HTTP API.
//
// @title       HR Back-Office API
// @version     1.0
// @description Organizational structure management with audit history, and an HR assistant backed by a chat completion API.
// @BasePath    /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/hr-backoffice/internal/config"
	"github.com/tbourn/hr-backoffice/internal/diagram"
	httpapi "github.com/tbourn/hr-backoffice/internal/http"
	"github.com/tbourn/hr-backoffice/internal/intent"
	"github.com/tbourn/hr-backoffice/internal/llm"
	"github.com/tbourn/hr-backoffice/internal/observability"
	"github.com/tbourn/hr-backoffice/internal/repo"
	"github.com/tbourn/hr-backoffice/internal/session"
	"github.com/tbourn/hr-backoffice/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stdout)
	gin.SetMode(cfg.GinMode)
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DB.Driver, cfg.DB.Path, cfg.DB.URL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("db open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("db migrate failed")
	}

	store, closeStore := sessionStore(ctx, cfg.Session)
	defer closeStore()

	classifier, err := intent.New(cfg.AI.UseLemmatizer)
	if err != nil {
		log.Warn().Err(err).Msg("lemmatizer unavailable, using keyword matching")
	}

	tokens, err := llm.NewTokenCounter(cfg.AI.Model)
	if err != nil {
		log.Warn().Err(err).Msg("tokenizer unavailable, estimating token counts")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Deps{
		Sessions:   store,
		Classifier: classifier,
		Tokens:     tokens,
		Completer:  completer(cfg.AI),
		Renderer:   diagram.ExecRenderer{Path: cfg.GraphvizDot},
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", ver).
			Str("db", cfg.DB.Driver).
			Str("classifier", classifier.Name()).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownTracing(shCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// sessionStore uses Redis when an address is configured and reachable, and
// the in-process store otherwise.
func sessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, func()) {
	if cfg.RedisAddr == "" {
		return session.NewMemoryStore(cfg.TTL), func() {}
	}
	rs := session.NewRedisStore(session.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), cfg.TTL)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, using in-process sessions")
		_ = rs.Close()
		return session.NewMemoryStore(cfg.TTL), func() {}
	}
	return rs, func() { _ = rs.Close() }
}

// completer returns the OpenAI client, or one that fails every call when no
// API key is configured so the rest of the API keeps working.
func completer(cfg config.AIConfig) llm.Completer {
	c, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:              cfg.APIKey,
		BaseURL:             cfg.BaseURL,
		Model:               cfg.Model,
		MaxCompletionTokens: cfg.MaxInputTokens,
		Timeout:             cfg.Timeout,
	})
	if err != nil {
		log.Warn().Err(err).Msg("assistant disabled")
		return llm.CompleterFunc(func(context.Context, []llm.Message) (string, error) {
			return "", err
		})
	}
	return c
}
