// Package imagegen turns a validated prompt plus reference images into a
// single generated image, retrying the provider until it returns one.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"nanobanana/internal/domain"
	"nanobanana/internal/imaging"
	"nanobanana/internal/infra"
	"nanobanana/internal/metrics"
)

const (
	defaultMIMEType = "image/png"
	healthPrompt    = "test"
)

var errNoCandidates = errors.New("No candidates in response after all retries")

// Options configures a Generator.
type Options struct {
	Model        string
	Policy       RetryPolicy
	CallTimeout  time.Duration
	MaxDimension int
	Logger       *infra.Logger

	// Sleep and Now are overridable so tests can observe the backoff schedule.
	Sleep func(context.Context, time.Duration) error
	Now   func() time.Time
}

// Generator drives the provider for image generation and health probes. It is
// safe for concurrent use; all per-call state lives on the stack.
type Generator struct {
	client      ContentGenerator
	model       string
	policy      RetryPolicy
	callTimeout time.Duration
	maxDim      int
	logger      *infra.Logger
	sleep       func(context.Context, time.Duration) error
	now         func() time.Time
}

// NewGenerator validates the options and returns a ready Generator.
func NewGenerator(client ContentGenerator, opts Options) (*Generator, error) {
	if client == nil {
		return nil, errors.New("imagegen: content generator is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, errors.New("imagegen: model is required")
	}
	policy := opts.Policy
	if policy.MaxAttempts == 0 && policy.InitialDelay == 0 && policy.MaxDelay == 0 {
		policy = DefaultRetryPolicy()
	}
	g := &Generator{
		client:      client,
		model:       model,
		policy:      policy.normalized(),
		callTimeout: opts.CallTimeout,
		maxDim:      opts.MaxDimension,
		logger:      opts.Logger,
		sleep:       opts.Sleep,
		now:         opts.Now,
	}
	if g.maxDim <= 0 {
		g.maxDim = imaging.MaxDimension
	}
	if g.logger == nil {
		g.logger = infra.NopLogger()
	}
	if g.sleep == nil {
		g.sleep = sleepContext
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g, nil
}

// Model returns the provider model identifier used for every call.
func (g *Generator) Model() string {
	return g.model
}

// Generate sends the request to the provider and returns the first image it
// produces. Failures are *domain.GenerationError except for reference images
// that cannot be decoded, which wrap domain.ErrInvalidImage.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	start := g.now()
	promptLength := utf8.RuneCountInString(req.Prompt)

	contents, err := BuildContents(req, g.maxDim, g.logger)
	if err != nil {
		return nil, err
	}
	config := BuildConfig(req.Temperature)

	g.logger.Info().
		Str("model", g.model).
		Int("prompt_length", promptLength).
		Int("context_images", len(req.ContextImages)).
		Msg("imagegen: generating image")
	g.logger.Debug().
		Str("prompt", truncateRunes(req.Prompt, textExcerptRunes)).
		Interface("temperature", req.Temperature).
		Msg("imagegen: request details")

	var (
		lastErr  error
		lastSeen inspection
		attempts int
	)
loop:
	for attempt := 1; attempt <= g.policy.MaxAttempts; attempt++ {
		attempts = attempt
		final := attempt == g.policy.MaxAttempts

		callStart := g.now()
		resp, callErr := g.call(ctx, contents, config)
		elapsed := g.now().Sub(callStart)

		if callErr != nil {
			metrics.RecordAttempt(string(outcomeError), elapsed.Seconds())
			if ctx.Err() != nil {
				return nil, g.fail(attempt, canceled(ctx, attempt))
			}
			lastErr = callErr
			if permanentError(callErr) {
				g.logger.Error().Err(callErr).Int("attempt", attempt).Msg("imagegen: provider rejected request")
				return nil, g.fail(attempt, &domain.GenerationError{
					Kind:     domain.KindPermanent,
					Attempts: attempt,
					Details:  []string{callErr.Error()},
					Err:      fmt.Errorf("%w: %w", domain.ErrProviderFailure, callErr),
				})
			}
			g.logger.Warn().Err(callErr).
				Int("attempt", attempt).
				Int("max_attempts", g.policy.MaxAttempts).
				Dur("duration", elapsed).
				Msg("imagegen: provider call failed")
			if final {
				return nil, g.fail(attempt, &domain.GenerationError{
					Kind:     domain.KindTransient,
					Attempts: attempt,
					Details:  []string{callErr.Error()},
					Err:      fmt.Errorf("%w: %w", domain.ErrProviderFailure, callErr),
				})
			}
		} else {
			seen := inspect(resp)
			metrics.RecordAttempt(string(seen.outcome), elapsed.Seconds())
			g.logger.Info().
				Int("attempt", attempt).
				Int("max_attempts", g.policy.MaxAttempts).
				Dur("duration", elapsed).
				Str("outcome", string(seen.outcome)).
				Msg("imagegen: provider call completed")

			lastSeen = seen
			switch seen.outcome {
			case outcomeImage:
				return g.success(start, req, promptLength, attempt, seen.image), nil
			case outcomeBlocked:
				g.logger.Error().Strs("details", seen.details).Msg("imagegen: prompt blocked")
				return nil, g.fail(attempt, &domain.GenerationError{
					Kind:     domain.KindBlocked,
					Attempts: attempt,
					Details:  seen.details,
					Err:      domain.ErrPromptBlocked,
				})
			case outcomeTextOnly:
				// only an empty answer is worth another call
				break loop
			}
			if final {
				lastErr = errNoCandidates
			}
		}

		if !final {
			delay := g.policy.Delay(attempt)
			g.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("imagegen: retrying")
			if err := g.sleep(ctx, delay); err != nil {
				return nil, g.fail(attempt, canceled(ctx, attempt))
			}
		}
	}

	var details []string
	if lastErr != nil {
		details = append(details, lastErr.Error())
	}
	details = append(details, lastSeen.details...)
	genErr := &domain.GenerationError{
		Kind:     domain.KindExhausted,
		Attempts: attempts,
		Details:  details,
		Err:      domain.ErrNoImage,
	}
	g.logger.Error().Int("attempts", attempts).Msg(genErr.Error())
	return nil, g.fail(attempts, genErr)
}

// HealthCheck sends a minimal prompt and reports whether the provider answered.
func (g *Generator) HealthCheck(ctx context.Context) error {
	contents := []*genai.Content{genai.NewContentFromText(healthPrompt, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: 1,
		Temperature:     genai.Ptr[float32](0.1),
	}
	resp, err := g.call(ctx, contents, config)
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	metrics.RecordHealthCheck(err == nil)
	if err != nil {
		g.logger.Warn().Err(err).Str("model", g.model).Msg("imagegen: health check failed")
		return fmt.Errorf("%w: health check: %w", domain.ErrProviderFailure, err)
	}
	return nil
}

func (g *Generator) call(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	callCtx := ctx
	if g.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
	}
	return g.client.GenerateContent(callCtx, g.model, contents, config)
}

func (g *Generator) success(start time.Time, req Request, promptLength, attempt int, blob *genai.Blob) *Result {
	mimeType := blob.MIMEType
	if mimeType == "" {
		mimeType = defaultMIMEType
	}
	elapsed := g.now().Sub(start)
	metrics.RecordGeneration("success", attempt)
	g.logger.Info().
		Int("attempts", attempt).
		Int("bytes", len(blob.Data)).
		Dur("elapsed", elapsed).
		Msg("imagegen: image generated")
	return &Result{
		Image:    blob.Data,
		MIMEType: mimeType,
		Attempts: attempt,
		Metadata: Metadata{
			GenerationTime:     elapsed.Seconds(),
			ModelUsed:          g.model,
			PromptLength:       promptLength,
			ContextImagesCount: len(req.ContextImages),
			Temperature:        req.Temperature,
			Attempts:           attempt,
			MIMEType:           mimeType,
		},
	}
}

func (g *Generator) fail(attempts int, err *domain.GenerationError) error {
	metrics.RecordGeneration(string(err.Kind), attempts)
	return err
}

func canceled(ctx context.Context, attempt int) *domain.GenerationError {
	cause := ctx.Err()
	if cause == nil {
		cause = context.Canceled
	}
	return &domain.GenerationError{
		Kind:     domain.KindCanceled,
		Attempts: attempt,
		Details:  []string{cause.Error()},
		Err:      cause,
	}
}
