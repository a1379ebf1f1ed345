// Package gemini provides an LLM-backed ticker extractor. Any model failure
// falls back to the pattern-based extraction.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/aristath/consensus/internal/ticker"
)

const (
	// DefaultModel is used when no model is configured
	DefaultModel = "gemini-2.0-flash"

	maxPromptText = 3000
)

const systemPrompt = "You are a financial analyst assistant that extracts stock ticker symbols from investment articles."

type generateFunc func(ctx context.Context, prompt string) (string, error)

// Extractor implements ticker.Extractor on top of Gemini
type Extractor struct {
	generate generateFunc
	log      zerolog.Logger
}

// NewExtractor creates an extractor using the Gemini API
func NewExtractor(ctx context.Context, apiKey, model string, log zerolog.Logger) (*Extractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	temperature := float32(0)
	config := &genai.GenerateContentConfig{
		Temperature:       &temperature,
		MaxOutputTokens:   200,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
	}

	generate := func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, []*genai.Content{
			{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
		}, config)
		if err != nil {
			return "", err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("empty response from model")
		}
		return resp.Candidates[0].Content.Parts[0].Text, nil
	}

	return newExtractor(generate, log), nil
}

func newExtractor(generate generateFunc, log zerolog.Logger) *Extractor {
	return &Extractor{
		generate: generate,
		log:      log.With().Str("client", "gemini").Logger(),
	}
}

// Extract asks the model for the tickers in text. It never returns an error:
// model failures are logged and answered by the pattern extractor.
func (e *Extractor) Extract(ctx context.Context, text string) ([]string, error) {
	answer, err := e.generate(ctx, BuildPrompt(text))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Warn().Err(err).Msg("LLM extraction failed, falling back to patterns")
		return ticker.ExtractRegex(text), nil
	}

	tickers := ParseAnswer(answer)
	e.log.Debug().Strs("tickers", tickers).Msg("Extracted tickers with LLM")
	return tickers, nil
}

// BuildPrompt renders the extraction prompt for the first part of text
func BuildPrompt(text string) string {
	if len(text) > maxPromptText {
		text = strings.ToValidUTF8(text[:maxPromptText], "")
	}
	return "Extract all stock tickers mentioned in the following text.\n" +
		"Return ONLY the ticker symbols as a comma-separated list, with no additional text or explanation.\n" +
		"For example: AAPL, MSFT, GOOGL\n\n" +
		"If no tickers are found, return: NONE\n\n" +
		"Text:\n" + text
}

// ParseAnswer turns the model's comma-separated reply into valid tickers
func ParseAnswer(answer string) []string {
	answer = strings.TrimSpace(answer)
	if answer == "" || strings.EqualFold(answer, "NONE") {
		return nil
	}
	return ticker.Clean(strings.Split(answer, ","))
}
