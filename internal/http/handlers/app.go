package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"nanobanana/internal/imagegen"
	"nanobanana/internal/infra"
	"nanobanana/internal/validation"
)

// Generator is the image generation backend used by the handlers.
type Generator interface {
	Generate(ctx context.Context, req imagegen.Request) (*imagegen.Result, error)
	HealthCheck(ctx context.Context) error
	Model() string
}

type App struct {
	Config    *infra.Config
	Logger    *infra.Logger
	Generator Generator
	Validator *validation.Validator
}

func NewApp(cfg *infra.Config, logger *infra.Logger, gen Generator) *App {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &App{
		Config:    cfg,
		Logger:    logger,
		Generator: gen,
		Validator: validation.New(validation.Options{
			MaxImageBytes:  cfg.MaxFileSize,
			MaxImages:      cfg.MaxContextImages,
			AllowedFormats: cfg.AllowedFormats(),
		}),
	}
}

type errorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string, details ...string) {
	a.json(w, code, errorResponse{Success: false, Error: msg, Details: details})
}

// log returns the request scoped logger installed by middleware.Logger, or
// the application logger when none is attached.
func (a *App) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return a.Logger
}
