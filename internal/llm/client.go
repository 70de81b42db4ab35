// Package llm implements the LLM Client component: a single HTTP endpoint,
// bearer-token auth, OpenAI-chat-shaped request/response contract with
// optional SSE streaming, generalized from the teacher's multi-provider
// internal/ai/llm.go (Ollama/OpenAI/Custom Generate methods) into one
// configurable client since the spec names exactly one configured endpoint.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kaiven11/artical-generate/internal/types"
)

// Params carries the per-call tunables the prompt catalog and loop vary
// between stages (translation wants low temperature, creative rewriting
// wants higher).
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Stream      bool
}

// DefaultParams mirrors the spec's documented defaults.
func DefaultParams() Params {
	return Params{
		Temperature: 0.7,
		MaxTokens:   100_000,
		Stream:      true,
	}
}

// Config configures the single configured LLM endpoint (§6.2 llm.*).
type Config struct {
	EndpointURL string
	APIKey      string
	DefaultModel string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	TotalTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 30 * time.Second,
		ReadTimeout:    60 * time.Second,
		TotalTimeout:   300 * time.Second,
	}
}

// Client is the LLM Client component (spec §4.C). It performs exactly one
// call per invocation; retry/backoff policy lives in the detect-optimise
// loop, not here.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.TotalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		}
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With("component", "llm_client"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Call sends prompt to the configured endpoint and returns the generated
// text. It honors ctx for cancellation and applies the client's own
// read/total timeouts layered on top of whatever ctx already carries.
func (c *Client) Call(ctx context.Context, prompt string, params Params) (string, error) {
	model := params.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TotalTimeout)
	defer cancel()

	payload := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Stream:      params.Stream,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if params.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &types.TransportError{Operation: "llm_call", Err: err}
	}
	defer resp.Body.Close()

	// The connect timeout is enforced by the transport's dialer; the read
	// timeout bounds the body read that follows: once headers have arrived,
	// the call's context is cancelled if the body has not been read within
	// ReadTimeout, independent of the overall per-call budget set on ctx above.
	if c.cfg.ReadTimeout > 0 {
		readTimer := time.AfterFunc(c.cfg.ReadTimeout, cancel)
		defer readTimer.Stop()
	}

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &types.TransportError{
			Operation:  "llm_call",
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Err:        errors.New("llm endpoint returned an error status"),
		}
	}

	var text string
	if params.Stream && strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		text, err = consumeSSE(resp.Body)
	} else {
		text, err = consumeJSON(resp.Body)
	}
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", types.ErrLLMFailure
	}
	return text, nil
}

func consumeJSON(r io.Reader) (string, error) {
	var decoded chatResponse
	if err := json.NewDecoder(r).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", types.ErrLLMFailure
	}
	return decoded.Choices[0].Message.Content, nil
}

// consumeSSE reads "data: {...}" lines terminated by "data: [DONE]",
// concatenating each chunk's delta.content.
func consumeSSE(r io.Reader) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue // malformed keep-alive or comment line; skip rather than fail the whole stream
		}
		for _, choice := range chunk.Choices {
			sb.WriteString(choice.Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read llm stream: %w", err)
	}
	return sb.String(), nil
}
