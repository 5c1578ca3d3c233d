package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"pockeat/internal/analysis"
	"pockeat/internal/api"
	"pockeat/internal/config"
	"pockeat/internal/nutrition"
	"pockeat/internal/platform/gemini"
	"pockeat/internal/platform/localllm"
)

func main() {
	cfg, err := config.Load("config.json", ".env")
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := nutrition.NewSQLStore(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("database schema ready", "type", cfg.DatabaseType)

	model, closeModel, err := newModel(ctx, cfg, logger)
	if err != nil {
		logger.Error("language model unavailable, running in degraded mode", "provider", cfg.LLMProvider, "error", err)
	}
	defer closeModel()

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: newRouter(cfg, model, store, logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("listening", "addr", cfg.Addr(), "environment", cfg.Environment)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server closed", "error", err)
		os.Exit(1)
	}
	logger.Info("server closed")
}

// newLogger returns a JSON logger in production and a text logger otherwise.
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newModel builds the configured language model. On failure the returned
// model is nil and the service runs degraded; the close func is always safe
// to call.
func newModel(ctx context.Context, cfg config.Config, logger *slog.Logger) (analysis.Model, func(), error) {
	noop := func() {}
	switch cfg.LLMProvider {
	case config.ProviderLocal:
		return localllm.NewClient(cfg.LocalLLMURL, cfg.LocalLLMModel), noop, nil
	default:
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, noop, err
		}
		return client, closeLogged(logger, "gemini client", client), nil
	}
}

// closeLogged returns a func that closes c and logs any error.
func closeLogged(logger *slog.Logger, name string, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Error("failed to close "+name, "error", err)
		}
	}
}

func newRouter(cfg config.Config, model analysis.Model, store api.AnalysisStore, logger *slog.Logger) *gin.Engine {
	analyzer := analysis.NewAnalyzer(model, cfg.CacheTTL, logger)
	handler := api.NewHandler(analyzer, store, logger, api.Options{
		Timeout:     cfg.RequestTimeout,
		ImageDir:    cfg.ImageDir,
		Environment: cfg.Environment,
	})
	return api.NewRouter(handler, logger, api.RouterConfig{
		CORSOrigins: cfg.CORSOrigins,
		ImageDir:    cfg.ImageDir,
	})
}
