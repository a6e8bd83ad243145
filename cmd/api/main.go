package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nanobanana/internal/http/handlers"
	httpapi "nanobanana/internal/http/httpapi"
	"nanobanana/internal/imagegen"
	"nanobanana/internal/infra"
	"nanobanana/internal/providers/genai"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.Debug)
	logger.Info().
		Str("title", cfg.AppTitle).
		Str("version", cfg.AppVersion).
		Str("model", cfg.ModelName).
		Strs("cors_origins", cfg.CORSOriginsList()).
		Msg("starting")

	ctx := context.Background()
	client, err := genai.NewClient(ctx, genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.ModelName,
		Timeout: cfg.APITimeout(),
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create gemini client")
	}

	generator, err := imagegen.NewGenerator(client, imagegen.Options{
		Model:       cfg.ModelName,
		Policy:      imagegen.DefaultRetryPolicy(),
		CallTimeout: cfg.APITimeout(),
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create generator")
	}

	app := handlers.NewApp(cfg, &logger, generator)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
