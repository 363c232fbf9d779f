package analyze

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig holds settings for an OpenAI-compatible chat backend.
// BaseURL points the client at gateways or local servers that speak the
// same protocol.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client // Optional (tests)
}

// OpenAIProvider implements Provider over the chat completions API.
// SDK transport retries are disabled: the orchestrator owns retry policy,
// and double-retrying would multiply worst-case latency per chunk.
type OpenAIProvider struct {
	model  string
	client openai.Client
}

// Verify interface compliance
var _ Provider = (*OpenAIProvider)(nil)

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{
		model:  cfg.Model,
		client: openai.NewClient(opts...),
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai:" + p.model
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompleteRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, 2),
	}
	if req.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.System))
	}
	params.Messages = append(params.Messages, openai.UserMessage(req.Prompt))
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &TransientError{Reason: "no choices in response"}
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return "", &TransientError{Reason: "response truncated at completion budget"}
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", &TransientError{Reason: "empty completion"}
	}
	return choice.Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= 500:
			return &TransientError{Status: apiErr.StatusCode, Reason: apiErr.Message}
		default:
			return &FatalError{Status: apiErr.StatusCode, Reason: apiErr.Message}
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// Deadline expiry and transport failures look the same from here: the
	// call did not complete, and a fresh attempt may.
	return &TransientError{Reason: err.Error()}
}
