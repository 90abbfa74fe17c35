package semantic

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/d-o-hub/episodic-memory-engine/internal/config"
	"github.com/d-o-hub/episodic-memory-engine/internal/nats"
)

// breakerStater is satisfied by *RemoteProvider; FallbackProvider type-
// asserts against it rather than depending on the concrete type, since
// primary may be a MockProvider with no breaker at all.
type breakerStater interface {
	BreakerState() gobreaker.State
}

// FallbackProvider tries a preferred remote provider first and drops to a
// Local provider, then a Mock provider, on failure — the inverse order of
// the original crate's with_fallback (Local -> OpenAI -> Mock), chosen
// because a deliberately configured remote provider should take priority
// over the hash-based local stand-in when the operator pays for one; Local
// remains the default when no remote provider is configured at all, and
// Mock is the last resort exactly as in the original.
type FallbackProvider struct {
	primary Provider
	local   *LocalProvider
	mock    *MockProvider
	logger  *zap.Logger

	bus              *nats.EventBus
	lastBreakerState atomic.Int32
}

// SetEventBus wires an optional event bus; when set and primary exposes a
// circuit breaker, every EmbedBatch call checks for a state transition and
// publishes one on change.
func (f *FallbackProvider) SetEventBus(bus *nats.EventBus) { f.bus = bus }

// checkBreakerState publishes a notification if primary's circuit breaker
// moved to a different state since the last check. A fresh FallbackProvider
// starts its tracked state at gobreaker.StateClosed (the zero value), which
// matches a newly constructed breaker, so no spurious event fires on the
// first call.
func (f *FallbackProvider) checkBreakerState() {
	if f.bus == nil || f.primary == nil {
		return
	}
	bs, ok := f.primary.(breakerStater)
	if !ok {
		return
	}
	current := bs.BreakerState()
	previous := gobreaker.State(f.lastBreakerState.Swap(int32(current)))
	if previous == current {
		return
	}
	_ = f.bus.PublishCircuitBreakerStateChange(nats.CircuitBreakerStateChangeMessage{
		Provider: f.primary.ModelName(),
		From:     previous.String(),
		To:       current.String(),
	})
}

// NewFallbackProvider builds the provider chain described by cfg. When
// cfg.Provider is Local (or any kind other than a remote one or Mock), or a
// remote kind's API key env var is empty, primary is nil and every call
// goes straight to the local provider. cfg.Enabled is not consulted here.
func NewFallbackProvider(cfg config.EmbeddingConfig, logger *zap.Logger) *FallbackProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	fp := &FallbackProvider{
		local:  NewLocalProvider(cfg.Dimension),
		mock:   NewMockProvider(cfg.Dimension),
		logger: logger,
	}

	switch cfg.Provider {
	case config.ProviderOpenAI, config.ProviderMistral,
		config.ProviderAzureOpenAI, config.ProviderCustomHTTP:
		apiKey := os.Getenv(cfg.APIKeyEnvVar)
		if apiKey == "" {
			logger.Warn("embedding API key env var not set, falling back to local provider",
				zap.String("env_var", cfg.APIKeyEnvVar))
			break
		}
		fp.primary = NewRemoteProvider(RemoteConfig{
			BaseURL:          cfg.BaseURL,
			APIKey:           apiKey,
			Model:            cfg.Model,
			Dimension:        cfg.Dimension,
			CallTimeout:      cfg.CallTimeout,
			TripThreshold:    uint32(cfg.CircuitBreakerTrip),
			CooldownPeriod:   cfg.CircuitBreakerCooldown,
			ModelDisplayName: cfg.Model,
		})
	case config.ProviderMock:
		fp.primary = fp.mock
	}

	return fp
}

func (f *FallbackProvider) Dimension() int {
	if f.primary != nil {
		return f.primary.Dimension()
	}
	return f.local.Dimension()
}

func (f *FallbackProvider) ModelName() string {
	if f.primary != nil {
		return f.primary.ModelName()
	}
	return f.local.ModelName()
}

func (f *FallbackProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *FallbackProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.primary != nil {
		vectors, err := f.primary.EmbedBatch(ctx, texts)
		f.checkBreakerState()
		if err == nil {
			return vectors, nil
		}
		f.logger.Warn("primary embedding provider failed, falling back to local", zap.Error(err))
	}

	vectors, err := f.local.EmbedBatch(ctx, texts)
	if err == nil {
		return vectors, nil
	}

	f.logger.Error("local embedding provider failed, falling back to mock (embeddings will be random)",
		zap.Error(err))
	return f.mock.EmbedBatch(ctx, texts)
}

// Similarity scores the cosine similarity between the embeddings of two
// texts, matching the original crate's provider.similarity convenience.
func Similarity(ctx context.Context, p Provider, textA, textB string) (float64, error) {
	vectors, err := p.EmbedBatch(ctx, []string{textA, textB})
	if err != nil {
		return 0, err
	}
	return CosineSimilarity(vectors[0], vectors[1]), nil
}
