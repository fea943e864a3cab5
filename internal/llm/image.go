package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/raphaelgruber/pluisje-go/internal/metrics"
)

// ImageClient generates images through the OpenAI images API.
type ImageClient struct {
	client  openai.Client
	model   string
	size    string
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewImageClient creates an image client. Extra request options (base URL,
// HTTP client) are appended after the API key.
func NewImageClient(apiKey, model, size string, log *slog.Logger, mc *metrics.Collector, opts ...option.RequestOption) (*ImageClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	if log == nil {
		log = slog.Default()
	}
	options := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &ImageClient{
		client:  openai.NewClient(options...),
		model:   model,
		size:    size,
		logger:  log,
		metrics: mc,
	}, nil
}

// GenerateImage renders one image for description and returns its URL.
func (c *ImageClient) GenerateImage(ctx context.Context, description string) (string, error) {
	start := time.Now()
	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         description,
		Model:          openai.ImageModel(c.model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize(c.size),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		c.metrics.RecordFailure(metrics.OpImageGenerate)
		return "", fmt.Errorf("generate image: %w", wrapFatalError(err))
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		c.metrics.RecordFailure(metrics.OpImageGenerate)
		return "", fmt.Errorf("generate image: empty response")
	}

	c.metrics.RecordTiming(metrics.OpImageGenerate, time.Since(start))
	c.logger.Debug("image generated", "model", c.model, "size", c.size, "duration", time.Since(start))
	return resp.Data[0].URL, nil
}
