// Command geminikey checks that a Gemini API key can reach the configured
// model by sending the same probe used by GET /api/health.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"nanobanana/internal/imagegen"
	"nanobanana/internal/infra"
	"nanobanana/internal/providers/genai"
)

func main() {
	_ = godotenv.Load()

	var (
		keyFlag     string
		modelFlag   string
		timeoutFlag time.Duration
	)
	flag.StringVar(&keyFlag, "key", "", "Gemini API key (fallbacks to GEMINI_API_KEY)")
	flag.StringVar(&modelFlag, "model", "", "model to probe (fallbacks to MODEL_NAME)")
	flag.DurationVar(&timeoutFlag, "timeout", 30*time.Second, "probe timeout")
	flag.Parse()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "GEMINI API key is required via -key or environment")
		os.Exit(1)
	}

	model := strings.TrimSpace(modelFlag)
	if model == "" {
		model = strings.TrimSpace(os.Getenv("MODEL_NAME"))
	}
	if model == "" {
		model = "models/gemini-2.5-flash-image-preview"
	}

	logger := infra.NewLogger(false).With().Str("cmd", "geminikey").Str("model", model).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()

	client, err := genai.NewClient(ctx, genai.Options{APIKey: key, Model: model, Timeout: timeoutFlag, Logger: &logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create client: %v\n", err)
		os.Exit(1)
	}
	generator, err := imagegen.NewGenerator(client, imagegen.Options{Model: model, CallTimeout: timeoutFlag, Logger: &logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create generator: %v\n", err)
		os.Exit(1)
	}

	if err := generator.HealthCheck(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "gemini key check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("gemini key ok for %s\n", model)
}
