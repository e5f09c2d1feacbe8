package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// ErrNoImage is returned when the upstream answers without an image URL
var ErrNoImage = errors.New("no image returned")

// ImageClient generates images with the caller's own OpenAI key. A client is
// built per call since every request may carry a different key.
type ImageClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewImageClient creates an image generator. An empty baseURL uses OpenAI's default.
func NewImageClient(baseURL string, httpClient *http.Client) *ImageClient {
	return &ImageClient{baseURL: baseURL, httpClient: httpClient}
}

// Generate creates one 1024x1024 image and returns its URL.
func (c *ImageClient) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("api key is required for image generation")
	}

	cfg := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	api := openai.NewClientWithConfig(cfg)

	resp, err := api.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatURL,
		N:              1,
	})
	if err != nil {
		return "", fmt.Errorf("creating image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", ErrNoImage
	}
	return resp.Data[0].URL, nil
}
