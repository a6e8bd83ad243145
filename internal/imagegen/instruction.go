package imagegen

import (
	"fmt"

	"google.golang.org/genai"

	"nanobanana/internal/domain"
	"nanobanana/internal/imaging"
	"nanobanana/internal/infra"
)

// SystemInstruction constrains the model to always answer with an image.
const SystemInstruction = "You are an AI image generation model. Your sole function is to generate images. " +
	"ALWAYS use the provided context (text descriptions and/or reference images) to generate a new image. " +
	"Never return text explanations or descriptions. " +
	"You must always output an image, regardless of the input. " +
	"If given text, generate an image based on that text. " +
	"If given images as context, use them as reference to generate a new related image."

// BuildContents decodes and normalises the reference images and assembles the
// single user turn: images first in input order, the prompt text last and
// exactly as received. logger may be nil.
func BuildContents(req Request, maxDim int, logger *infra.Logger) ([]*genai.Content, error) {
	if logger == nil {
		logger = infra.NopLogger()
	}
	parts := make([]*genai.Part, 0, len(req.ContextImages)+1)
	for i, encoded := range req.ContextImages {
		raw, err := imaging.DecodeBase64(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: context image %d: %v", domain.ErrInvalidImage, i, err)
		}
		img, err := imaging.Normalize(raw, maxDim)
		if err != nil {
			return nil, fmt.Errorf("%w: context image %d: %v", domain.ErrInvalidImage, i, err)
		}
		logger.Debug().
			Int("index", i).
			Str("source_format", img.SourceFormat).
			Bool("has_alpha", img.HasAlpha).
			Bool("converted", img.ConvertedModel).
			Bool("resized", img.Resized).
			Str("size", fmt.Sprintf("%dx%d -> %dx%d", img.SourceWidth, img.SourceHeight, img.Width, img.Height)).
			Msg("imagegen: context image prepared")
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}})
	}

	if req.Prompt == "" {
		return nil, domain.ErrInvalidPrompt
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil
}

// BuildConfig returns the generation config for an image request.
func BuildConfig(temperature *float32) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction:  genai.NewContentFromText(SystemInstruction, genai.RoleUser),
		Temperature:        temperature,
		ResponseModalities: []string{string(genai.ModalityImage)},
	}
}
