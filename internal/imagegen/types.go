package imagegen

import (
	"context"

	"google.golang.org/genai"
)

// ContentGenerator is the subset of the provider SDK the generator depends on.
// *genai.Client.Models satisfies it, as does the logging adapter in
// internal/providers/genai.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Request is a validated generation call.
type Request struct {
	Prompt        string
	ContextImages []string
	Temperature   *float32
}

// Metadata describes how a result was produced.
type Metadata struct {
	GenerationTime     float64  `json:"generation_time"`
	ModelUsed          string   `json:"model_used"`
	PromptLength       int      `json:"prompt_length"`
	ContextImagesCount int      `json:"context_images_count"`
	Temperature        *float32 `json:"temperature"`
	Attempts           int      `json:"attempts"`
	MIMEType           string   `json:"mime_type"`
}

// Result is a successfully generated image.
type Result struct {
	Image    []byte
	MIMEType string
	Attempts int
	Metadata Metadata
}
