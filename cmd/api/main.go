package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lunajournal/luna/backend/internal/config"
	"github.com/lunajournal/luna/backend/internal/handler"
	"github.com/lunajournal/luna/backend/internal/handler/assets"
	"github.com/lunajournal/luna/backend/internal/logging"
	"github.com/lunajournal/luna/backend/internal/model/pseudonym"
	"github.com/lunajournal/luna/backend/internal/service/ai"
	"github.com/lunajournal/luna/backend/internal/service/session"
	"github.com/lunajournal/luna/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		logger := logging.New(os.Stderr, "info", logging.FormatConsole)
		logger.Error().Err(err).Msg("luna backend exited")
		os.Exit(1)
	}
}

// run wires the service and serves until ctx is cancelled. Sessions are ended
// before it returns, whether or not the listener failed.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	transport := newTransport(ctx, cfg.Chat, logging.Component(logger, "transport"))
	if !ai.IsConfigured(transport) {
		logger.Warn().
			Str("provider", cfg.Chat.Provider).
			Str("missing", cfg.Chat.MissingCredential()).
			Msg("chat transport not configured; every session will fail to start")
	}

	registry := session.NewRegistry()
	defer registry.Close()

	factory := session.NewFactory(session.FactoryConfig{
		Transport:   transport,
		Recognition: cfg.Speech.Recognition(),
		Synthesis:   cfg.Speech.Synthesis(),
		Catalog:     speech.NewCatalog(speech.DefaultRegionRules),
		SkipDelay:   cfg.Speech.SkipDelay,
		ChatTimeout: cfg.Chat.Timeout,
		Logger:      logger,
	}, registry)

	staticAssets, err := assets.New(cfg.Assets, logging.Component(logger, "assets"))
	if err != nil {
		return fmt.Errorf("prepare static assets: %w", err)
	}

	pseudonyms := pseudonym.NewMemoryStore(pseudonym.Seed())
	router := handler.NewRouter(pseudonyms, factory, staticAssets, logger)

	return startServer(ctx, cfg.Server, router, logger)
}

// newTransport builds the configured chat provider, falling back to a
// transport that refuses every session when credentials are missing.
func newTransport(ctx context.Context, cfg config.ChatConfig, logger zerolog.Logger) ai.Transport {
	missing := ai.NotConfigured{Missing: cfg.MissingCredential()}
	if !cfg.Enabled() {
		return missing
	}

	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("failed to create Ark chat model")
			return ai.NotConfigured{Missing: "a working Ark chat model"}
		}
		t, err := ai.NewArkTransport(ctx, chatModel, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to build Ark chain")
			return ai.NotConfigured{Missing: "a working Ark chat model"}
		}
		logger.Info().Str("model", cfg.Ark.Model).Msg("Ark transport ready")
		return t
	default:
		t, err := ai.NewGeminiTransport(ctx, cfg.Gemini, logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to create Gemini client")
			return ai.NotConfigured{Missing: "a working GEMINI_API_KEY"}
		}
		logger.Info().Str("model", cfg.Gemini.Model).Msg("Gemini transport ready")
		return t
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("Luna backend listening")
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
