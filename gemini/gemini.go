// Package gemini implements divisions.Classifier with Google Gemini.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	divisions "github.com/armindomatias/go-divisions"
)

// Downloader fetches remote photos. Gemini does not fetch arbitrary URLs, so
// remote images are downloaded and sent inline. *divisions.Config satisfies it.
type Downloader interface {
	Download(ctx context.Context, url string, opts divisions.DownloadOpts) (*divisions.DownloadResult, error)
}

// Client is a Gemini-backed classifier.
type Client struct {
	client      *genai.Client
	downloader  Downloader
	temperature float32
}

// New creates a client authenticated with apiKey. downloader may be nil when
// every image is passed as a data: URI.
func New(ctx context.Context, apiKey string, downloader Downloader) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	return &Client{client: client, downloader: downloader}, nil
}

// SetTemperature sets the sampling temperature for later calls.
func (c *Client) SetTemperature(t float32) {
	c.temperature = t
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Classify sends the prompt followed by the images and returns the text of
// the first candidate.
func (c *Client) Classify(ctx context.Context, model, prompt string, images []divisions.ImageInput) (string, error) {
	gm := c.client.GenerativeModel(model)
	gm.SetTemperature(c.temperature)
	gm.ResponseMIMEType = "application/json"

	parts := []genai.Part{genai.Text(prompt)}
	for _, img := range images {
		part, err := c.imagePart(ctx, img)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}

	resp, err := gm.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return responseText(resp)
}

func (c *Client) imagePart(ctx context.Context, img divisions.ImageInput) (genai.Part, error) {
	if mimeType, data, ok := divisions.DecodeDataURL(img.URL); ok {
		return genai.Blob{MIMEType: mimeType, Data: data}, nil
	}
	if c.downloader == nil {
		return nil, fmt.Errorf("gemini: cannot send remote image %s without a downloader", img.URL)
	}
	r, err := c.downloader.Download(ctx, img.URL, divisions.DownloadOpts{})
	if err != nil {
		return nil, fmt.Errorf("gemini: download %s: %w", img.URL, err)
	}
	if r == nil {
		return nil, fmt.Errorf("gemini: image unavailable: %s", img.URL)
	}
	return genai.ImageData(imageFormat(r.MIMEType), r.Data), nil
}

// imageFormat maps "image/jpeg" to the "jpeg" format genai.ImageData expects.
func imageFormat(mimeType string) string {
	if f, ok := strings.CutPrefix(mimeType, "image/"); ok && f != "" {
		return f
	}
	return "jpeg"
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from Gemini")
	}
	var b strings.Builder
	for _, p := range candidate.Content.Parts {
		if txt, ok := p.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return b.String(), nil
}
