// Package llm escalates uncertain texts to the Gemini API for a second
// opinion. It implements detect.Classifier.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"trustd/internal/detect"
	"trustd/internal/logging"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// maxPromptChars bounds how much of a sample is sent upstream. Texts this
// long are already well past what the classifier needs to decide.
const maxPromptChars = 2500

const systemInstruction = `You are a forensic text classifier. Given a piece of text, decide whether it was written by an AI language model or a human. Respond with a single JSON object and nothing else: no markdown, no code fences, no commentary. The object has exactly these fields: "isAI" (boolean), "confidence" (number between 0 and 1), "model" (string, your best guess at the generating model family or "unknown"), "reasoning" (one short sentence).`

// verdict is the wire shape of the classifier's reply.
type verdict struct {
	IsAI       bool    `json:"isAI"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model"`
	Reasoning  string  `json:"reasoning"`
}

// Config holds settings for the Gemini classifier.
type Config struct {
	// APIKey authenticates against the Gemini API. Required.
	APIKey string

	// Model defaults to DefaultModel when empty.
	Model string
}

// GeminiClassifier calls the Gemini API through the official SDK.
type GeminiClassifier struct {
	client *genai.Client
	model  string
	log    *logging.Logger
}

// Ensure the detect contract is satisfied.
var _ detect.Classifier = (*GeminiClassifier)(nil)

// NewGeminiClassifier creates a classifier backed by the Gemini API.
func NewGeminiClassifier(ctx context.Context, cfg Config, log *logging.Logger) (*GeminiClassifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if log == nil {
		log = logging.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClassifier{
		client: client,
		model:  cfg.Model,
		log:    log,
	}, nil
}

// Classify asks the model whether text is AI-generated. An unparseable
// reply degrades to a neutral verdict rather than an error; only
// transport and API failures are reported as errors.
func (c *GeminiClassifier) Classify(ctx context.Context, text string) (detect.LLMResult, error) {
	prompt := text
	if len(prompt) > maxPromptChars {
		prompt = prompt[:maxPromptChars] + " …[truncated]"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0.1),
		},
	)
	if err != nil {
		return detect.LLMResult{}, fmt.Errorf("generate content: %w", err)
	}

	raw := strings.TrimSpace(resp.Text())
	result, ok := parseVerdict(raw)
	if !ok {
		c.log.Warn("unparseable classifier reply, falling back to neutral verdict",
			"model", c.model, "reply_len", len(raw))
	}
	return result, nil
}

// Model returns the configured model name.
func (c *GeminiClassifier) Model() string {
	return c.model
}

// parseVerdict decodes the model's JSON reply, tolerating stray markdown
// fences. The second return is false when the reply had to be discarded.
func parseVerdict(raw string) (detect.LLMResult, bool) {
	raw = stripFences(raw)

	var v verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return detect.LLMResult{
			IsAI:       false,
			Confidence: 0.5,
			Model:      "unknown",
			Markers:    []string{"fallback_parse_failure"},
		}, false
	}

	if v.Confidence < 0 {
		v.Confidence = 0
	} else if v.Confidence > 1 {
		v.Confidence = 1
	}
	if v.Model == "" {
		v.Model = "unknown"
	}

	var markers []string
	if v.Reasoning != "" {
		markers = append(markers, "llm_reasoning:"+v.Reasoning)
	}

	return detect.LLMResult{
		IsAI:       v.IsAI,
		Confidence: v.Confidence,
		Model:      v.Model,
		Markers:    markers,
	}, true
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
