package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request to
// prevent hammering an unhealthy Ollama instance.
var ErrCircuitOpen = errors.New("insight circuit breaker is open")

// OllamaConfig holds Ollama generator configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model name to use for narration (default: phi3:mini)
	Model string

	// Timeout is the request timeout duration (default: 5s)
	Timeout time.Duration
}

// OllamaGenerator narrates derived records through a local Ollama instance.
// All HTTP calls go through a circuit breaker so a down or overloaded Ollama
// degrades the pipeline to narrative-free records instead of stalling it.
type OllamaGenerator struct {
	baseURL string
	model   string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

var _ Generator = (*OllamaGenerator)(nil)

// generateRequest represents the request body for the /api/generate endpoint.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse represents the response from the /api/generate endpoint.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaGenerator creates an Ollama-backed generator. Unset config fields
// fall back to the defaults documented on OllamaConfig.
func NewOllamaGenerator(config OllamaConfig) *OllamaGenerator {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "phi3:mini"
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "InsightCircuitBreaker",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &OllamaGenerator{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		model:   config.Model,
		timeout: config.Timeout,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: breaker,
	}
}

// Name returns the generator name with its model.
func (g *OllamaGenerator) Name() string {
	return "ollama/" + g.model
}

// Narrate asks Ollama for a one-sentence narrative of the given record
// description.
func (g *OllamaGenerator) Narrate(ctx context.Context, subject string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", nil
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.generate(ctx, narrativePrompt(subject))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("narrate: %w", ErrCircuitOpen)
		}
		return "", err
	}

	return strings.TrimSpace(result.(string)), nil
}

func narrativePrompt(subject string) string {
	return "Write one concise sentence describing the insight behind this consolidated memory record. " +
		"Respond with only the sentence, no preamble.\n\n" + subject
}

func (g *OllamaGenerator) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reqBody := generateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return respData.Response, nil
}

// HealthCheck verifies that Ollama is reachable via the /api/version
// endpoint. It bypasses the circuit breaker since it is a probe itself.
func (g *OllamaGenerator) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", g.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
