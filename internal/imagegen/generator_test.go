package imagegen

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"nanobanana/internal/domain"
	"nanobanana/internal/imaging"
)

const testModel = "models/gemini-2.5-flash-image-preview"

type scriptedCall struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeProvider struct {
	mu       sync.Mutex
	script   []scriptedCall
	calls    int
	models   []string
	contents [][]*genai.Content
	configs  []*genai.GenerateContentConfig
}

func (f *fakeProvider) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	f.models = append(f.models, model)
	f.contents = append(f.contents, contents)
	f.configs = append(f.configs, config)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.script) == 0 {
		return nil, errors.New("no scripted response")
	}
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	return f.script[idx].resp, f.script[idx].err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, d := range s.delays {
		sum += d
	}
	return sum
}

func newTestGenerator(t *testing.T, provider ContentGenerator, rec *sleepRecorder) *Generator {
	t.Helper()
	g, err := NewGenerator(provider, Options{Model: testModel, Sleep: rec.sleep})
	require.NoError(t, err)
	return g
}

func imageResponse(data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: data}},
			}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func emptyResponse() *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 90, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return imaging.EncodeBase64(buf.Bytes())
}

func TestNewGeneratorRequiresClientAndModel(t *testing.T) {
	_, err := NewGenerator(nil, Options{Model: testModel})
	assert.Error(t, err)

	_, err = NewGenerator(&fakeProvider{}, Options{Model: "  "})
	assert.Error(t, err)

	g, err := NewGenerator(&fakeProvider{}, Options{Model: testModel})
	require.NoError(t, err)
	assert.Equal(t, testModel, g.Model())
	assert.Equal(t, DefaultRetryPolicy(), g.policy)
}

func TestGenerateSucceedsAfterEmptyResponses(t *testing.T) {
	want := []byte("png-bytes")
	provider := &fakeProvider{script: []scriptedCall{
		{resp: emptyResponse()},
		{resp: emptyResponse()},
		{resp: emptyResponse()},
		{resp: emptyResponse()},
		{resp: imageResponse(want)},
	}}
	rec := &sleepRecorder{}
	g := newTestGenerator(t, provider, rec)

	res, err := g.Generate(context.Background(), Request{Prompt: "A banana"})
	require.NoError(t, err)
	assert.Equal(t, want, res.Image)
	assert.Equal(t, "image/png", res.MIMEType)
	assert.Equal(t, 5, res.Attempts)
	assert.Equal(t, 5, provider.callCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, rec.delays)
	assert.GreaterOrEqual(t, rec.total(), 15*time.Second)
	assert.Equal(t, 5, res.Metadata.Attempts)
}

func TestGenerateStopsOnBlockedPrompt(t *testing.T) {
	provider := &fakeProvider{script: []scriptedCall{{resp: &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
			BlockReason: genai.BlockedReasonSafety,
			SafetyRatings: []*genai.SafetyRating{
				{Category: genai.HarmCategoryDangerousContent, Probability: genai.HarmProbabilityHigh},
				{Category: genai.HarmCategoryHarassment, Probability: genai.HarmProbabilityLow},
			},
		},
	}}}}
	rec := &sleepRecorder{}
	g := newTestGenerator(t, provider, rec)

	_, err := g.Generate(context.Background(), Request{Prompt: "something forbidden"})
	require.Error(t, err)
	assert.Equal(t, 1, provider.callCount())
	assert.Empty(t, rec.delays)
	assert.ErrorIs(t, err, domain.ErrPromptBlocked)

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, domain.KindBlocked, genErr.Kind)
	assert.Contains(t, err.Error(), "Prompt blocked: SAFETY")
	assert.Contains(t, err.Error(), "Safety concerns: [HARM_CATEGORY_DANGEROUS_CONTENT:HIGH]")
	assert.NotContains(t, err.Error(), "HARASSMENT")
}

func TestGenerateReportsFinalTransportErrorVerbatim(t *testing.T) {
	provider := &fakeProvider{script: []scriptedCall{{err: errors.New("connection reset by peer")}}}
	rec := &sleepRecorder{}
	g := newTestGenerator(t, provider, rec)

	_, err := g.Generate(context.Background(), Request{Prompt: "A banana"})
	require.Error(t, err)
	assert.Equal(t, 5, provider.callCount())
	assert.Len(t, rec.delays, 4)

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, domain.KindTransient, genErr.Kind)
	assert.Equal(t, 5, genErr.Attempts)
	assert.ErrorIs(t, err, domain.ErrProviderFailure)
	assert.Equal(t, "connection reset by peer", err.Error())
}

func TestGenerateExhaustsOnEmptyResponses(t *testing.T) {
	provider := &fakeProvider{script: []scriptedCall{
		{err: errors.New("connection reset by peer")},
		{resp: emptyResponse()},
	}}
	rec := &sleepRecorder{}
	g := newTestGenerator(t, provider, rec)

	_, err := g.Generate(context.Background(), Request{Prompt: "A banana"})
	require.Error(t, err)
	assert.Equal(t, 5, provider.callCount())
	assert.Len(t, rec.delays, 4)

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, domain.KindExhausted, genErr.Kind)
	assert.ErrorIs(t, err, domain.ErrNoImage)
	assert.Equal(t, "No image was generated. No candidates in response after all retries | No candidates in response", err.Error())
}

func TestGenerateStopsOnTextOnlyResponse(t *testing.T) {
	long := strings.Repeat("x", 800)
	provider := &fakeProvider{script: []scriptedCall{{resp: textResponse("I cannot draw that. " + long)}}}
	rec := &sleepRecorder{}
	g := newTestGenerator(t, provider, rec)

	_, err := g.Generate(context.Background(), Request{Prompt: "A banana"})
	require.Error(t, err)
	assert.Equal(t, 1, provider.callCount())
	assert.Empty(t, rec.delays)

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, domain.KindExhausted, genErr.Kind)
	assert.Equal(t, 1, genErr.Attempts)
	assert.Contains(t, genErr.Details, "Finish reason: STOP")

	var excerpt string
	for _, d := range genErr.Details {
		if strings.HasPrefix(d, "Text response received: ") {
			excerpt = strings.TrimPrefix(d, "Text response received: ")
		}
	}
	assert.Len(t, []rune(excerpt), 500)
	assert.True(t, strings.HasPrefix(excerpt, "I cannot draw that."))
}

func TestGenerateKeepsEarlierErrorWhenTextFollows(t *testing.T) {
	provider := &fakeProvider{script: []scriptedCall{
		{err: errors.New("deadline exceeded")},
		{resp: textResponse("I cannot draw that")},
	}}
	rec := &sleepRecorder{}
	g := newTestGenerator(t, provider, rec)

	_, err := g.Generate(context.Background(), Request{Prompt: "A banana"})
	require.Error(t, err)
	assert.Equal(t, 2, provider.callCount())
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
	assert.Equal(t, "No image was generated. deadline exceeded | Finish reason: STOP | Text response received: I cannot draw that", err.Error())
}

func TestGenerateReportsCandidateSafetyBlocks(t *testing.T) {
	provider := &fakeProvider{script: []scriptedCall{{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonSafety,
			SafetyRatings: []*genai.SafetyRating{
				{Category: genai.HarmCategorySexuallyExplicit, Blocked: true},
				{Category: genai.HarmCategoryHateSpeech},
			},
		}},
	}}}}
	rec := &sleepRecorder{}
	g := newTestGenerator(t, provider, rec)

	_, err := g.Generate(context.Background(), Request{Prompt: "A banana"})
	require.Error(t, err)
	assert.Equal(t, 1, provider.callCount())
	assert.Empty(t, rec.delays)
	assert.Contains(t, err.Error(), "Finish reason: SAFETY")
	assert.Contains(t, err.Error(), "Blocked by safety filters: [HARM_CATEGORY_SEXUALLY_EXPLICIT]")
}

func TestGenerateAbortsOnPermanentProviderError(t *testing.T) {
	provider := &fakeProvider{script: []scriptedCall{{err: genai.APIError{Code: 401, Status: "UNAUTHENTICATED", Message: "API key not valid"}}}}
	rec := &sleepRecorder{}
	g := newTestGenerator(t, provider, rec)

	_, err := g.Generate(context.Background(), Request{Prompt: "A banana"})
	require.Error(t, err)
	assert.Equal(t, 1, provider.callCount())
	assert.Empty(t, rec.delays)

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, domain.KindPermanent, genErr.Kind)
	assert.ErrorIs(t, err, domain.ErrProviderFailure)
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	provider := &fakeProvider{script: []scriptedCall{
		{err: genai.APIError{Code: 503, Status: "UNAVAILABLE", Message: "overloaded"}},
		{resp: imageResponse([]byte("ok"))},
	}}
	g := newTestGenerator(t, provider, &sleepRecorder{})

	res, err := g.Generate(context.Background(), Request{Prompt: "A banana"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestGenerateStopsWhenContextCanceled(t *testing.T) {
	provider := &fakeProvider{script: []scriptedCall{{resp: emptyResponse()}}}
	ctx, cancel := context.WithCancel(context.Background())
	g, err := NewGenerator(provider, Options{
		Model: testModel,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})
	require.NoError(t, err)

	_, err = g.Generate(ctx, Request{Prompt: "A banana"})
	require.Error(t, err)
	assert.Equal(t, 1, provider.callCount())
	assert.ErrorIs(t, err, context.Canceled)

	var genErr *domain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, domain.KindCanceled, genErr.Kind)
}

func TestGenerateBuildsProviderRequest(t *testing.T) {
	provider := &fakeProvider{script: []scriptedCall{{resp: imageResponse([]byte("ok"))}}}
	g := newTestGenerator(t, provider, &sleepRecorder{})
	temp := float32(0.7)

	first := pngBase64(t, 3000, 1500)
	second := "data:image/png;base64," + pngBase64(t, 10, 20)
	res, err := g.Generate(context.Background(), Request{
		Prompt:        "Blend these",
		ContextImages: []string{first, second},
		Temperature:   &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Metadata.ContextImagesCount)
	require.NotNil(t, res.Metadata.Temperature)
	assert.InDelta(t, 0.7, *res.Metadata.Temperature, 0.0001)

	require.Len(t, provider.contents, 1)
	assert.Equal(t, testModel, provider.models[0])
	contents := provider.contents[0]
	require.Len(t, contents, 1)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	parts := contents[0].Parts
	require.Len(t, parts, 3)

	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "image/png", parts[0].InlineData.MIMEType)
	info, err := imaging.Inspect(parts[0].InlineData.Data)
	require.NoError(t, err)
	assert.Equal(t, 2048, info.Width)
	assert.Equal(t, 1024, info.Height)

	require.NotNil(t, parts[1].InlineData)
	info, err = imaging.Inspect(parts[1].InlineData.Data)
	require.NoError(t, err)
	assert.Equal(t, 10, info.Width)

	assert.Equal(t, "Blend these", parts[2].Text)

	cfg := provider.configs[0]
	assert.Equal(t, []string{"IMAGE"}, cfg.ResponseModalities)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, SystemInstruction, cfg.SystemInstruction.Parts[0].Text)
	assert.Equal(t, &temp, cfg.Temperature)
}

func TestGenerateRejectsUndecodableImageWithoutCallingProvider(t *testing.T) {
	provider := &fakeProvider{script: []scriptedCall{{resp: imageResponse([]byte("ok"))}}}
	g := newTestGenerator(t, provider, &sleepRecorder{})

	_, err := g.Generate(context.Background(), Request{Prompt: "x", ContextImages: []string{imaging.EncodeBase64([]byte("nope"))}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidImage)
	assert.Equal(t, 0, provider.callCount())
}

func TestGenerateCyberpunkScenario(t *testing.T) {
	provider := &fakeProvider{script: []scriptedCall{{resp: imageResponse([]byte("city"))}}}
	g := newTestGenerator(t, provider, &sleepRecorder{})
	prompt := "A futuristic cyberpunk city at night with neon lights"

	res, err := g.Generate(context.Background(), Request{Prompt: prompt})
	require.NoError(t, err)
	assert.Equal(t, testModel, res.Metadata.ModelUsed)
	assert.Equal(t, len(prompt), res.Metadata.PromptLength)
	assert.Equal(t, 0, res.Metadata.ContextImagesCount)
	assert.Nil(t, res.Metadata.Temperature)
	assert.GreaterOrEqual(t, res.Metadata.GenerationTime, 0.0)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy when provider answers", func(t *testing.T) {
		provider := &fakeProvider{script: []scriptedCall{{resp: textResponse("ok")}}}
		g := newTestGenerator(t, provider, &sleepRecorder{})
		require.NoError(t, g.HealthCheck(context.Background()))

		cfg := provider.configs[0]
		assert.Equal(t, int32(1), cfg.MaxOutputTokens)
		require.NotNil(t, cfg.Temperature)
		assert.InDelta(t, 0.1, *cfg.Temperature, 0.0001)
		assert.Equal(t, "test", provider.contents[0][0].Parts[0].Text)
	})

	t.Run("unhealthy on provider error", func(t *testing.T) {
		provider := &fakeProvider{script: []scriptedCall{{err: errors.New("dial tcp: timeout")}}}
		g := newTestGenerator(t, provider, &sleepRecorder{})
		err := g.HealthCheck(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrProviderFailure)
		assert.Equal(t, 1, provider.callCount())
	})

	t.Run("unhealthy on nil response", func(t *testing.T) {
		provider := &fakeProvider{script: []scriptedCall{{}}}
		g := newTestGenerator(t, provider, &sleepRecorder{})
		assert.Error(t, g.HealthCheck(context.Background()))
	})
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{12, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestSleepContextHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := sleepContext(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
