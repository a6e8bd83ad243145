package genai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	sdk "google.golang.org/genai"

	"nanobanana/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client wraps the Gemini SDK client. It is built once at startup, shared by
// every request and safe for concurrent use.
type Client struct {
	models *sdk.Models
	model  string
	logger *infra.Logger
}

// NewClient constructs the SDK client for the Gemini Developer API. Callers may
// provide a nil HTTP client; one honouring Timeout is created.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("genai: API key is missing")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	cfg := &sdk.ClientConfig{
		APIKey:     apiKey,
		Backend:    sdk.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.HTTPOptions.BaseURL = base
	}

	client, err := sdk.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}

	return &Client{
		models: client.Models,
		model:  strings.TrimSpace(opts.Model),
		logger: logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// GenerateContent forwards one call to the SDK. Errors are returned unchanged
// so callers can inspect sdk.APIError status codes.
func (c *Client) GenerateContent(ctx context.Context, model string, contents []*sdk.Content, config *sdk.GenerateContentConfig) (*sdk.GenerateContentResponse, error) {
	if model == "" {
		model = c.model
	}
	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, model, contents, config)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("model", model).
			Dur("duration", elapsed).
			Msg("genai: generate content failed")
		return nil, err
	}

	candidates := 0
	if resp != nil {
		candidates = len(resp.Candidates)
	}
	c.logger.Debug().
		Str("model", model).
		Dur("duration", elapsed).
		Int("candidates", candidates).
		Msg("genai: generate content completed")
	return resp, nil
}
