package infra

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	GeminiAPIKey      string `env:"GEMINI_API_KEY"`
	Host              string `env:"HOST" envDefault:"0.0.0.0"`
	Port              int    `env:"PORT" envDefault:"8000"`
	CORSOrigins       string `env:"CORS_ORIGINS" envDefault:"http://localhost:5173,http://localhost:3000"`
	MaxFileSize       int64  `env:"MAX_FILE_SIZE" envDefault:"10485760"`
	MaxRequestSize    int64  `env:"MAX_REQUEST_SIZE" envDefault:"52428800"`
	MaxContextImages  int    `env:"MAX_CONTEXT_IMAGES" envDefault:"10"`
	AllowedExtensions string `env:"ALLOWED_EXTENSIONS" envDefault:"jpg,jpeg,png,webp"`
	APITimeoutSeconds int    `env:"API_TIMEOUT" envDefault:"60"`
	ModelName         string `env:"MODEL_NAME" envDefault:"models/gemini-2.5-flash-image-preview"`
	AppTitle          string `env:"APP_TITLE" envDefault:"Nano Banana Image Editor API"`
	AppVersion        string `env:"APP_VERSION" envDefault:"0.1.0"`
	Debug             bool   `env:"DEBUG" envDefault:"true"`
	RateLimitPerMin   int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"0"`

	HTTPReadTimeoutSeconds  int `env:"HTTP_READ_TIMEOUT_SECONDS" envDefault:"30"`
	HTTPWriteTimeoutSeconds int `env:"HTTP_WRITE_TIMEOUT_SECONDS" envDefault:"330"`
	HTTPIdleTimeoutSeconds  int `env:"HTTP_IDLE_TIMEOUT_SECONDS" envDefault:"60"`
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.GeminiAPIKey = strings.TrimSpace(cfg.GeminiAPIKey)
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT must be between 1 and 65535, got %d", cfg.Port)
	}
	if strings.TrimSpace(cfg.ModelName) == "" {
		return nil, fmt.Errorf("MODEL_NAME must not be empty")
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if len(cfg.AllowedFormats()) == 0 {
		return nil, fmt.Errorf("ALLOWED_EXTENSIONS must list at least one image format")
	}

	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// CORSOriginsList splits CORS_ORIGINS. An empty list or "*" allows every origin.
func (c *Config) CORSOriginsList() []string {
	return splitList(c.CORSOrigins, false)
}

// AllowedExtensionsList returns the lower-cased ALLOWED_EXTENSIONS entries.
func (c *Config) AllowedExtensionsList() []string {
	return splitList(c.AllowedExtensions, true)
}

// AllowedFormats maps file extensions onto the format names reported by
// image.DecodeConfig ("jpg" and "jpeg" both become "jpeg").
func (c *Config) AllowedFormats() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ext := range c.AllowedExtensionsList() {
		format := strings.TrimPrefix(ext, ".")
		if format == "jpg" {
			format = "jpeg"
		}
		if _, ok := seen[format]; ok {
			continue
		}
		seen[format] = struct{}{}
		out = append(out, format)
	}
	return out
}

// APITimeout is the upper bound for a single provider call.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

func (c *Config) HTTPReadTimeout() time.Duration {
	return time.Duration(c.HTTPReadTimeoutSeconds) * time.Second
}

func (c *Config) HTTPWriteTimeout() time.Duration {
	return time.Duration(c.HTTPWriteTimeoutSeconds) * time.Second
}

func (c *Config) HTTPIdleTimeout() time.Duration {
	return time.Duration(c.HTTPIdleTimeoutSeconds) * time.Second
}

func splitList(raw string, lower bool) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lower {
			part = strings.ToLower(part)
		}
		out = append(out, part)
	}
	return out
}
