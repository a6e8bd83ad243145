package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"nanobanana/internal/domain"
	"nanobanana/internal/imagegen"
	"nanobanana/internal/imaging"
)

type generationSettings struct {
	// Model is accepted for compatibility; the configured model always wins.
	Model       string   `json:"model"`
	Temperature *float32 `json:"temperature" validate:"omitempty,gte=0,lte=2"`
}

type generateImageRequest struct {
	Prompt        string              `json:"prompt" validate:"required,max=5000"`
	ContextImages []string            `json:"context_images" validate:"omitempty,maxitems,dive,b64image"`
	Settings      *generationSettings `json:"settings" validate:"omitempty"`
}

type failureMetadata struct {
	GenerationTime float64 `json:"generation_time"`
	ModelUsed      string  `json:"model_used"`
}

type imageResponse struct {
	Success  bool   `json:"success"`
	Image    string `json:"image,omitempty"`
	Error    string `json:"error,omitempty"`
	Metadata any    `json:"metadata,omitempty"`
}

func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := a.log(r)

	var req generateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			a.error(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			a.error(w, http.StatusUnprocessableEntity, "Validation error", "body: Field required")
		default:
			a.error(w, http.StatusUnprocessableEntity, "Validation error", "body: JSON decode error: "+err.Error())
		}
		return
	}

	if err := a.Validator.Struct(req); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			log.Info().Strs("details", verr.Details).Msg("generate request rejected")
			a.error(w, http.StatusUnprocessableEntity, "Validation error", verr.Details...)
			return
		}
		log.Error().Err(err).Msg("validate generate request")
		a.error(w, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	genReq := imagegen.Request{Prompt: req.Prompt, ContextImages: req.ContextImages}
	if req.Settings != nil {
		genReq.Temperature = req.Settings.Temperature
		if m := strings.TrimSpace(req.Settings.Model); m != "" && m != a.Generator.Model() {
			log.Debug().Str("requested_model", m).Msg("ignoring requested model")
		}
	}
	log.Info().Str("prompt", excerpt(req.Prompt, 100)).Msg("received generation request")

	res, err := a.Generator.Generate(r.Context(), genReq)
	if err != nil {
		var genErr *domain.GenerationError
		switch {
		case errors.As(err, &genErr):
			log.Error().Err(err).Str("kind", string(genErr.Kind)).Int("attempts", genErr.Attempts).Msg("generation failed")
			a.json(w, http.StatusOK, imageResponse{
				Success: false,
				Error:   genErr.Error(),
				Metadata: failureMetadata{
					GenerationTime: time.Since(start).Seconds(),
					ModelUsed:      a.Generator.Model(),
				},
			})
		case errors.Is(err, domain.ErrInvalidImage):
			a.error(w, http.StatusUnprocessableEntity, "Validation error", "body -> context_images: "+err.Error())
		case errors.Is(err, domain.ErrInvalidPrompt):
			a.error(w, http.StatusUnprocessableEntity, "Validation error", "body -> prompt: String should have at least 1 character")
		default:
			log.Error().Err(err).Msg("unexpected generation error")
			a.error(w, http.StatusInternalServerError, "An unexpected error occurred")
		}
		return
	}

	a.json(w, http.StatusOK, imageResponse{
		Success:  true,
		Image:    imaging.EncodeBase64(res.Image),
		Metadata: res.Metadata,
	})
}

// excerpt shortens s to about n runes for logging without splitting a
// character from its combining marks.
func excerpt(s string, n int) string {
	cut, count := 0, 0
	for i := range s {
		if count == n {
			cut = i
			break
		}
		count++
	}
	if cut == 0 {
		return s
	}
	if norm.NFC.FirstBoundary([]byte(s[cut:])) != 0 {
		if b := norm.NFC.LastBoundary([]byte(s[:cut])); b > 0 {
			cut = b
		}
	}
	return s[:cut] + "..."
}
