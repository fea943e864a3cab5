// Package llm provides text completion via langchaingo and image generation via the OpenAI API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/pluisje-go/internal/config"
	"github.com/raphaelgruber/pluisje-go/internal/metrics"
	"github.com/raphaelgruber/pluisje-go/internal/models"
)

// ErrEmptyResponse is returned when the provider answers without any choice.
var ErrEmptyResponse = errors.New("no response choices")

// Model wraps a langchaingo LLM for chat completion.
type Model struct {
	llm       llms.Model
	modelName string
	logger    *slog.Logger
	metrics   *metrics.Collector
}

// NewModel creates an LLM model based on configuration.
func NewModel(ctx context.Context, cfg config.Config, log *slog.Logger, mc *metrics.Collector) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return newModel(model, cfg.LLMModel, log, mc), nil
}

func newModel(model llms.Model, name string, log *slog.Logger, mc *metrics.Collector) *Model {
	if log == nil {
		log = slog.Default()
	}
	return &Model{llm: model, modelName: name, logger: log, metrics: mc}
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// Complete submits messages as-is and returns the first choice's text.
func (m *Model) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, toMessageContent(messages))
	if err != nil {
		m.metrics.RecordFailure(metrics.OpLLMGenerate)
		return "", fmt.Errorf("generate: %w", wrapFatalError(err))
	}
	return m.firstChoice(metrics.OpLLMGenerate, start, resp)
}

// CompleteStream is like Complete but calls onChunk for every streamed fragment.
// Returning an error from onChunk aborts the stream.
func (m *Model) CompleteStream(ctx context.Context, messages []models.ChatMessage, onChunk func(string) error) (string, error) {
	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, toMessageContent(messages),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			return onChunk(string(chunk))
		}),
	)
	if err != nil {
		m.metrics.RecordFailure(metrics.OpLLMStream)
		return "", fmt.Errorf("stream: %w", wrapFatalError(err))
	}
	return m.firstChoice(metrics.OpLLMStream, start, resp)
}

func (m *Model) firstChoice(op string, start time.Time, resp *llms.ContentResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		m.metrics.RecordFailure(op)
		return "", ErrEmptyResponse
	}
	choice := resp.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	m.metrics.RecordLLMUsage(op, time.Since(start), in, out)
	m.logger.Debug("completion done", "model", m.modelName, "op", op,
		"input_tokens", in, "output_tokens", out, "duration", time.Since(start))
	return choice.Content, nil
}

func toMessageContent(messages []models.ChatMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		out = append(out, llms.TextParts(messageType(msg.Role), msg.Content))
	}
	return out
}

func messageType(role models.Role) llms.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// tokenUsage reads token counts from provider generation info.
// OpenAI reports PromptTokens/CompletionTokens, Anthropic and Bedrock
// report InputTokens/OutputTokens.
func tokenUsage(info map[string]any) (input, output int64) {
	input = firstInt(info, "PromptTokens", "InputTokens", "input_tokens")
	output = firstInt(info, "CompletionTokens", "OutputTokens", "output_tokens")
	return input, output
}

func firstInt(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
