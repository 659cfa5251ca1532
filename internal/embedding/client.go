// Package embedding talks to the external text-embedding service.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	DefaultEndpoint       = "http://127.0.0.1:8844/embed"
	DefaultMaxLength      = 512
	DefaultRequestTimeout = 20 * time.Second
)

type Options struct {
	Endpoint       string
	MaxLength      int
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

type Client struct {
	endpoint   string
	maxLength  int
	timeout    time.Duration
	httpClient *http.Client
}

type embedRequest struct {
	Texts     []string `json:"texts,omitempty"`
	Input     []string `json:"input,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Data       []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func NewClient(opts Options) *Client {
	maxLength := opts.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint:   NormalizeEndpoint(opts.Endpoint),
		maxLength:  maxLength,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// Embed returns the vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding response count mismatch: requested=1 returned=%d", len(vectors))
	}
	return vectors[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	payload := embedRequest{
		Texts:     texts,
		MaxLength: c.maxLength,
	}
	parsedEndpoint, err := url.Parse(c.endpoint)
	if err == nil && strings.HasSuffix(parsedEndpoint.Path, "/v1/embeddings") {
		payload = embedRequest{Input: texts}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding service status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	vectors := parsed.Embeddings
	if len(vectors) == 0 && len(parsed.Data) > 0 {
		sort.Slice(parsed.Data, func(i, j int) bool {
			return parsed.Data[i].Index < parsed.Data[j].Index
		})
		vectors = make([][]float64, 0, len(parsed.Data))
		for _, row := range parsed.Data {
			vectors = append(vectors, row.Embedding)
		}
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding response missing vectors")
	}
	for i, vector := range vectors {
		for j, value := range vector {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return nil, fmt.Errorf("vector %d has non-finite value at index %d", i, j)
			}
		}
	}
	return vectors, nil
}

func NormalizeEndpoint(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultEndpoint
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = "/embed"
	}
	return parsed.String()
}

// Input joins title and description the way stored content is embedded.
func Input(title, description string) string {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	switch {
	case title == "" && description == "":
		return ""
	case description == "":
		return title
	case title == "":
		return description
	default:
		return title + "\n\n" + description
	}
}
