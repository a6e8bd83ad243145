package imagegen

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const textExcerptRunes = 500

type outcome string

const (
	outcomeImage    outcome = "image"
	outcomeBlocked  outcome = "blocked"
	outcomeEmpty    outcome = "empty"
	outcomeTextOnly outcome = "text_only"
	outcomeError    outcome = "error"
)

// inspection is what a single provider response amounted to.
type inspection struct {
	outcome outcome
	image   *genai.Blob
	details []string
}

// inspect classifies a provider response. A prompt block reason wins over
// everything else; safety ratings and finish reasons only feed diagnostics.
func inspect(resp *genai.GenerateContentResponse) inspection {
	if resp == nil {
		return inspection{outcome: outcomeEmpty, details: []string{"Response was None or empty"}}
	}

	if fb := resp.PromptFeedback; fb != nil && blocked(fb.BlockReason) {
		details := []string{"Prompt blocked: " + string(fb.BlockReason)}
		if concerns := safetyConcerns(fb.SafetyRatings); concerns != "" {
			details = append(details, concerns)
		}
		return inspection{outcome: outcomeBlocked, details: details}
	}

	if len(resp.Candidates) == 0 {
		details := []string{"No candidates in response"}
		if fb := resp.PromptFeedback; fb != nil {
			if concerns := safetyConcerns(fb.SafetyRatings); concerns != "" {
				details = append(details, concerns)
			}
		}
		return inspection{outcome: outcomeEmpty, details: details}
	}

	var text string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return inspection{outcome: outcomeImage, image: part.InlineData}
			}
			if part.Text != "" && !part.Thought {
				text = part.Text
			}
		}
	}

	var details []string
	if first := resp.Candidates[0]; first != nil {
		if first.FinishReason != "" {
			details = append(details, "Finish reason: "+string(first.FinishReason))
		}
		var categories []string
		for _, r := range first.SafetyRatings {
			if r != nil && r.Blocked {
				categories = append(categories, categoryName(r.Category))
			}
		}
		if len(categories) > 0 {
			details = append(details, fmt.Sprintf("Blocked by safety filters: [%s]", strings.Join(categories, ", ")))
		}
	}
	if text != "" {
		details = append(details, "Text response received: "+truncateRunes(text, textExcerptRunes))
	}
	return inspection{outcome: outcomeTextOnly, details: details}
}

func blocked(reason genai.BlockedReason) bool {
	return reason != "" && reason != genai.BlockedReasonUnspecified
}

// safetyConcerns lists prompt ratings above LOW probability.
func safetyConcerns(ratings []*genai.SafetyRating) string {
	var issues []string
	for _, r := range ratings {
		if r == nil {
			continue
		}
		switch r.Probability {
		case genai.HarmProbabilityMedium, genai.HarmProbabilityHigh:
			issues = append(issues, categoryName(r.Category)+":"+string(r.Probability))
		}
	}
	if len(issues) == 0 {
		return ""
	}
	return fmt.Sprintf("Safety concerns: [%s]", strings.Join(issues, ", "))
}

func categoryName(c genai.HarmCategory) string {
	if c == "" {
		return "unknown"
	}
	return string(c)
}

// permanentError reports provider errors that no retry can fix.
func permanentError(err error) bool {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code = apiErrPtr.Code
	}
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
