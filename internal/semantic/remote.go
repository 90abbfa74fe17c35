package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// RemoteProvider calls an OpenAI-compatible embeddings endpoint (OpenAI,
// Azure OpenAI, Mistral, or any CustomHTTP provider all speak this same
// request/response shape in practice), guarded by a circuit breaker so a
// degraded remote dependency cannot stall every completion. Grounded on
// the OpenAI/Mistral/AzureOpenAI provider variants enumerated in
// memory-core/src/embeddings/mod.rs's module list and config::ProviderConfig,
// generalized into one HTTP client since their wire formats coincide.
type RemoteProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	dim        int
	breaker    *gobreaker.CircuitBreaker
}

// RemoteConfig configures a RemoteProvider.
type RemoteConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Dimension         int
	CallTimeout       time.Duration
	TripThreshold     uint32 // consecutive failures before the breaker opens
	CooldownPeriod    time.Duration
	ModelDisplayName  string
}

// NewRemoteProvider constructs a RemoteProvider with a gobreaker circuit
// breaker: the breaker opens after TripThreshold consecutive failures and
// stays open for CooldownPeriod before allowing a single half-open probe.
func NewRemoteProvider(cfg RemoteConfig) *RemoteProvider {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.TripThreshold == 0 {
		cfg.TripThreshold = 5
	}
	if cfg.CooldownPeriod <= 0 {
		cfg.CooldownPeriod = 30 * time.Second
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	name := cfg.ModelDisplayName
	if name == "" {
		name = cfg.Model
	}

	settings := gobreaker.Settings{
		Name:    "semantic-remote-provider",
		Timeout: cfg.CooldownPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.TripThreshold
		},
	}

	return &RemoteProvider{
		httpClient: &http.Client{Timeout: cfg.CallTimeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dim:        cfg.Dimension,
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (p *RemoteProvider) Dimension() int    { return p.dim }
func (p *RemoteProvider) ModelName() string { return p.model }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *RemoteProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *RemoteProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.doEmbed(ctx, texts)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil, err
	}
	return result.([][]float32), nil
}

func (p *RemoteProvider) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("semantic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("semantic: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("semantic: embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("semantic: embedding endpoint returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("semantic: decode response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("semantic: expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// BreakerState reports the circuit breaker's current state for
// observability / event-bus notification.
func (p *RemoteProvider) BreakerState() gobreaker.State {
	return p.breaker.State()
}
