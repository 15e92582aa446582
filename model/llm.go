package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"regcheck/types"

	"github.com/pkoukk/tiktoken-go"
)

// Generator is the opaque text-in/text-out inference service.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// OllamaClient talks to an Ollama-compatible generate endpoint.
type OllamaClient struct {
	URL    string
	Model  string
	client *http.Client
}

func NewOllamaClient(url, model string) *OllamaClient {
	return &OllamaClient{
		URL:    url,
		Model:  model,
		client: &http.Client{},
	}
}

func (c *OllamaClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	reqBody, err := json.Marshal(generateRequest{
		Model:  c.Model,
		System: system,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	if count, err := CountTokens(reqBody); err == nil {
		log.Printf("[LLM] prompt size: %d tokens, %d bytes", count, len(reqBody))
	}

	start := time.Now()
	defer func() {
		log.Printf("[LLM] answer took %v", time.Since(start))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= http.StatusInternalServerError {
			return "", fmt.Errorf("%w: generate API status %d", types.ErrModelUnavailable, resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("generate API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err == nil && genResp.Response != "" {
		return genResp.Response, nil
	}

	// Streamed response: concatenate the chunks.
	var output string
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var chunk generateResponse
		if err := decoder.Decode(&chunk); err != nil {
			break
		}
		output += chunk.Response
	}
	return output, nil
}

// RetryConfig bounds retries against a flaky inference service.
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BackoffBase: 2 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// GenerateWithRetry retries transient failures with linear backoff. Only
// ErrModelUnavailable is retried; anything else fails immediately.
func GenerateWithRetry(ctx context.Context, g Generator, system, prompt string, cfg RetryConfig) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		out, err := g.Generate(ctx, system, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !isTransient(err) {
			return "", err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		backoff := time.Duration(attempt) * cfg.BackoffBase
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
		log.Printf("[LLM] attempt %d failed: %v, retrying in %v", attempt, err, backoff)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", types.ErrModelUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
	}
	return "", fmt.Errorf("generate failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

func isTransient(err error) bool {
	if errors.Is(err, types.ErrModelUnavailable) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CountTokens estimates the token count of a request payload.
func CountTokens(data []byte) (int, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return 0, err
	}
	tokens := enc.Encode(string(data), nil, nil)
	return len(tokens), nil
}
