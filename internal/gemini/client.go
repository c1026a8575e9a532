// Package gemini implements integration with Google's Gemini AI API.
// It writes a short commentary appended to published poll results.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/pollbot/internal/config"
	"github.com/edgard/pollbot/internal/poll"
	"github.com/edgard/pollbot/internal/resilience"
	"github.com/edgard/pollbot/internal/sanitize"
)

// maxAttempts bounds calls per commentary, the first one included.
const maxAttempts = 3

// generator is the part of genai.Models used by the client.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client comments on poll results. It implements poll.Commentator.
type Client struct {
	models        generator
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
	timeout       time.Duration
	breaker       *resilience.CircuitBreaker
	retry         resilience.RetryConfig
	sanitizer     *sanitize.Policy
}

var _ poll.Commentator = (*Client)(nil)

// NewClient creates a new Gemini client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	c := newClient(gi.Models, cfg, log)
	c.log.Info("Gemini client initialized successfully", "model", cfg.Model)
	return c, nil
}

func newClient(models generator, cfg config.GeminiConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}

	temperature := cfg.Temperature
	baseCfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
		},
	}
	if cfg.Instruction != "" {
		baseCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.Instruction}}}
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = maxAttempts
	retry.Retryable = isRetriable

	log = log.With("component", "gemini_client")
	return &Client{
		models:        models,
		log:           log,
		contentConfig: baseCfg,
		modelName:     cfg.Model,
		timeout:       cfg.Timeout,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:        "gemini",
			MaxFailures: 3,
			Timeout:     cfg.Timeout,
			OpenPeriod:  5 * time.Minute,
			Logger:      log,
		}),
		retry:     retry,
		sanitizer: sanitize.NewTelegramPolicy(),
	}
}

// CommentResults asks the model for a one or two sentence remark on res.
func (c *Client) CommentResults(ctx context.Context, res poll.Results) (string, error) {
	c.log.DebugContext(ctx, "Generating results commentary", "options", len(res.Options), "total_votes", res.Total)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{genai.NewContentFromText(buildResultsPrompt(res), genai.RoleUser)}

	resp, err := c.generateContent(ctx, contents)
	if err != nil {
		return "", fmt.Errorf("failed to generate results commentary: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp)
}

// generateContent calls the model through the breaker, retrying HTTP 500
// and 503 answers with backoff.
func (c *Client) generateContent(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.WithRetry(ctx, func(ctx context.Context) error {
			var err error
			resp, err = c.models.GenerateContent(ctx, c.modelName, contents, c.contentConfig)
			if err != nil {
				c.log.WarnContext(ctx, "Gemini API call failed", "error", err)
			}
			return err
		}, c.retry)
	})
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return resp, nil
}

// isRetriable reports whether err is a transient Gemini server error.
func isRetriable(err error) bool {
	var apiErr *genai.APIError
	return errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503)
}

func (c *Client) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini returned no response")
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.WarnContext(ctx, "Gemini request blocked", "reason", reasonMsg)
		return "", fmt.Errorf("commentary blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		return "", fmt.Errorf("commentary returned no content, finish reason: %s", finishReason)
	}

	text := c.sanitizer.SanitizeText(resp.Text())
	if text == "" {
		return "", errors.New("commentary returned empty text")
	}
	return text, nil
}
