package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/hpungsan/plate/internal/config"
)

// maxImageBytes caps images downloaded for inline upload.
const maxImageBytes = 10 << 20

// Gemini calls the Gemini API or Vertex AI through google.golang.org/genai.
type Gemini struct {
	client    *genai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	http      *http.Client
}

// NewGemini creates a Gemini client. cfg.Vertex selects the Vertex AI backend
// with application default credentials.
func NewGemini(ctx context.Context, cfg config.LLMConfig, timeout time.Duration) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Vertex {
		cc = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	} else if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   timeout,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the provider name.
func (g *Gemini) Name() string { return ProviderGemini }

// Complete sends one GenerateContent call in JSON response mode.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	parts := []*genai.Part{}
	if req.ImageURL != "" {
		data, mime, err := g.fetchImage(ctx, req.ImageURL)
		if err != nil {
			return "", err
		}
		parts = append(parts, genai.NewPartFromBytes(data, mime))
	}
	parts = append(parts, genai.NewPartFromText(req.Text))

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		MaxOutputTokens:  int32(g.maxTokens),
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from gemini api")
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty text in gemini response")
	}
	return text, nil
}

// fetchImage downloads an image for inline upload.
func (g *Gemini) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("bad image url: %w", err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image download failed: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("image download failed: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}
