// Package openai is an embeddings client for OpenAI-compatible endpoints, including Ollama.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/cpretzinger/idudesRAG/internal/domain"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"

	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 5
	defaultRetryBase  = 200 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
	maxRetryAfter     = 30 * time.Second
)

// Client embeds text with one request per batch.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	maxRetries uint64
	retryBase  time.Duration
	dimension  atomic.Int64
}

// Config configures the client. APIKey wins over APIKeyEnv.
type Config struct {
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	APIKey     string        `yaml:"-" env:"API_KEY"`
	APIKeyEnv  string        `yaml:"api_key_env" env:"API_KEY_ENV"`
	Model      string        `yaml:"model" env:"MODEL"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryBase  time.Duration `yaml:"retry_base" env:"RETRY_BASE"`
}

// NewClient creates a client. A key is required only for the public OpenAI endpoint.
func NewClient(cfg Config) (*Client, error) {
	key := cfg.APIKey
	if key == "" && cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if key == "" && cfg.BaseURL == DefaultBaseURL {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrConfig, cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     key,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: uint64(cfg.MaxRetries), // #nosec G115 -- positive, checked above
		retryBase:  cfg.RetryBase,
	}
	c.dimension.Store(int64(cfg.Dimensions))
	return c, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Model() string { return c.model }

// Dimension is the configured size, or the size of the first vector received.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type request struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type response struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	// Ollama /api/embed
	Embeddings [][]float32 `json:"embeddings"`
	// Ollama /api/embeddings, single input only
	Embedding []float32 `json:"embedding"`
}

// EmbedDocuments sends all texts in one request, retrying transport failures, rate limits and
// server errors with capped exponential backoff.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(request{Model: c.model, Input: texts, Dimensions: c.dimensions})
	if err != nil {
		return nil, fmt.Errorf("encode embeddings request: %w", err)
	}
	backoff := retry.WithMaxRetries(c.maxRetries, retry.WithCappedDuration(maxRetryDelay, retry.NewExponential(c.retryBase)))

	var vectors [][]float32
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		payload, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		vectors, err = decode(payload, len(texts))
		return err
	})
	if err != nil {
		return nil, err
	}
	c.dimension.CompareAndSwap(0, int64(len(vectors[0])))
	return vectors, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		if d, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
		return nil, retry.RetryableError(fmt.Errorf("openai embeddings failed: %s", resp.Status))
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("openai embeddings failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	return payload, nil
}

func decode(payload []byte, want int) ([][]float32, error) {
	var out response
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	var vectors [][]float32
	switch {
	case len(out.Data) > 0:
		sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
		vectors = make([][]float32, len(out.Data))
		for i, d := range out.Data {
			vectors[i] = d.Embedding
		}
	case len(out.Embeddings) > 0:
		vectors = out.Embeddings
	case len(out.Embedding) > 0:
		vectors = [][]float32{out.Embedding}
	default:
		return nil, errors.New("no embedding returned")
	}
	if len(vectors) != want {
		return nil, fmt.Errorf("%w: sent %d texts, got %d vectors", domain.ErrCountMismatch, want, len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("empty embedding for input %d", i)
		}
	}
	return vectors, nil
}

func retryAfter(h string) (time.Duration, bool) {
	if h == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(h)
	if err != nil || secs < 0 {
		return 0, false
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter), true
}
