// File: internal/llmclient/gemini_client.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
	"github.com/xkilldash9x/wayfarer-cli/internal/agent"
	"github.com/xkilldash9x/wayfarer-cli/internal/config"
)

// GeminiEngine implements schemas.LLMEngine against the Google Gemini API.
type GeminiEngine struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	config     config.LLMConfig
	limiter    *rate.Limiter
	tracer     *UsageTracer
}

// -- Gemini API Request/Response Structures (Internal to this file) --

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequestPayload struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig   `json:"generationConfig,omitempty"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiEngine initializes the engine.
func NewGeminiEngine(cfg config.LLMConfig, logger *zap.Logger) (*GeminiEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}

	return &GeminiEngine{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		config:   cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger:  logger.Named("llm_client.gemini"),
		limiter: limiter,
		tracer:  NewUsageTracer(),
	}, nil
}

// Usage returns the accumulated token accounting for this engine.
func (c *GeminiEngine) Usage() schemas.UsageSummary {
	return c.tracer.Summary()
}

// StructuredCompletion submits the conversation and unmarshals the model's
// JSON response into out. Transient provider errors are retried with
// exponential backoff; a response that survives retries but does not match
// the expected shape surfaces as a schema validation failure.
func (c *GeminiEngine) StructuredCompletion(ctx context.Context, messages []schemas.Message, out any) error {
	raw, err := c.generate(ctx, messages)
	if err != nil {
		return err
	}

	payload, err := extractJSON(raw)
	if err != nil {
		return &agent.SchemaValidationError{Detail: err.Error(), Err: err}
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return &agent.SchemaValidationError{Detail: fmt.Sprintf("response does not match the expected shape: %v", err), Err: err}
	}
	return nil
}

func (c *GeminiEngine) generate(ctx context.Context, messages []schemas.Message) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait aborted: %w", err)
		}
	}

	body, err := json.Marshal(c.buildRequestPayload(messages))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var responseContent string
	var lastStatus int

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		lastStatus = resp.StatusCode
		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload geminiResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		if len(responsePayload.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}

		candidate := responsePayload.Candidates[0]
		if len(candidate.Content.Parts) == 0 {
			if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason))
			}
			return fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
		}

		c.logger.Info("LLM generation complete (Gemini)",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", responsePayload.UsageMetadata.PromptTokenCount),
			zap.Int("completion_tokens", responsePayload.UsageMetadata.CandidatesTokenCount),
			zap.Int("total_tokens", responsePayload.UsageMetadata.TotalTokenCount),
		)
		c.tracer.Record(c.config.Model,
			responsePayload.UsageMetadata.PromptTokenCount,
			responsePayload.UsageMetadata.CandidatesTokenCount,
			responsePayload.UsageMetadata.TotalTokenCount,
		)

		responseContent = candidate.Content.Parts[0].Text
		return nil
	}

	if err = backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if lastStatus == http.StatusTooManyRequests {
			return "", &agent.RateLimitError{Err: err}
		}
		return "", err
	}
	return responseContent, nil
}

func (c *GeminiEngine) buildRequestPayload(messages []schemas.Message) geminiRequestPayload {
	payload := geminiRequestPayload{
		GenerationConfig: geminiGenerationConfig{
			Temperature:      c.config.Temperature,
			ResponseMimeType: "application/json",
			MaxOutputTokens:  c.config.MaxOutputTokens,
		},
	}

	for _, msg := range messages {
		switch msg.Role {
		case schemas.RoleSystem:
			payload.SystemInstruction = &geminiSystemInstruction{
				Parts: []geminiPart{{Text: msg.Content}},
			}
		case schemas.RoleAssistant:
			payload.Contents = append(payload.Contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		default:
			parts := []geminiPart{{Text: msg.Content}}
			if len(msg.Image) > 0 {
				parts = append(parts, geminiPart{InlineData: &geminiInlineData{
					MimeType: "image/png",
					Data:     base64.StdEncoding.EncodeToString(msg.Image),
				}})
			}
			payload.Contents = append(payload.Contents, geminiContent{
				Role:  "user",
				Parts: parts,
			})
		}
	}
	return payload
}

func (c *GeminiEngine) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("Gemini API returned error status", zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("gemini API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err // Transient errors, retry.
	default:
		return backoff.Permanent(err) // Permanent errors.
	}
}
