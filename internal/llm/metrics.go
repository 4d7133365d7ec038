package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/alcance/internal/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════════
// COST RATES (per million tokens)
// ═══════════════════════════════════════════════════════════════════════════════

// ProviderCostRates defines cost per million tokens for each provider.
type ProviderCostRates struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// CostRates maps provider names to their token costs (USD per million tokens).
var CostRates = map[string]ProviderCostRates{
	"openai":   {0.15, 0.60}, // gpt-4o-mini
	"deepseek": {0.27, 1.10}, // deepseek-chat
}

// GetCostRate returns the cost rate for a provider.
func GetCostRate(provider string) ProviderCostRates {
	if rate, ok := CostRates[provider]; ok {
		return rate
	}
	return ProviderCostRates{1.0, 2.0}
}

// ═══════════════════════════════════════════════════════════════════════════════
// METRICS PROVIDER
// ═══════════════════════════════════════════════════════════════════════════════

// MetricsProvider wraps a provider with timing, Prometheus collectors and
// per-process counters.
type MetricsProvider struct {
	provider Provider
	name     string

	totalCalls        int64
	totalErrors       int64
	totalInputTokens  int64
	totalOutputTokens int64
}

// NewMetricsProvider wraps a provider with metrics collection.
func NewMetricsProvider(provider Provider) *MetricsProvider {
	return &MetricsProvider{
		provider: provider,
		name:     provider.Name(),
	}
}

// Complete implements Provider with metrics.
func (m *MetricsProvider) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	resp, err := m.provider.Complete(ctx, req)
	latency := time.Since(start)

	atomic.AddInt64(&m.totalCalls, 1)
	metrics.ProviderRequestDuration.WithLabelValues(m.name).Observe(latency.Seconds())

	if err != nil {
		atomic.AddInt64(&m.totalErrors, 1)
		kind := KindMalformed
		var perr *ProviderError
		if errors.As(err, &perr) {
			kind = perr.Kind
		}
		metrics.ProviderErrors.WithLabelValues(m.name, string(kind)).Inc()
		log.Warn().Err(err).
			Str("provider", m.name).
			Str("model", req.Model).
			Dur("latency", latency).
			Msg("chat completion failed")
		return nil, err
	}

	atomic.AddInt64(&m.totalInputTokens, int64(resp.PromptTokens))
	atomic.AddInt64(&m.totalOutputTokens, int64(resp.CompletionTokens))

	log.Debug().
		Str("provider", m.name).
		Str("model", resp.Model).
		Dur("latency", latency).
		Int("tokens", resp.TokensUsed).
		Int("tool_calls", len(resp.ToolCalls)).
		Float64("cost_usd", m.cost(resp)).
		Msg("chat completion")
	return resp, nil
}

func (m *MetricsProvider) cost(resp *ChatResponse) float64 {
	rates := GetCostRate(m.name)
	return float64(resp.PromptTokens)/1_000_000.0*rates.InputPerMillion +
		float64(resp.CompletionTokens)/1_000_000.0*rates.OutputPerMillion
}

// Name returns the wrapped provider's name.
func (m *MetricsProvider) Name() string {
	return m.name
}

// Available delegates to the wrapped provider.
func (m *MetricsProvider) Available() bool {
	return m.provider.Available()
}

// Unwrap returns the wrapped provider.
func (m *MetricsProvider) Unwrap() Provider {
	return m.provider
}

// GetMetrics returns a snapshot of the process-local counters.
func (m *MetricsProvider) GetMetrics() map[string]interface{} {
	calls := atomic.LoadInt64(&m.totalCalls)
	errs := atomic.LoadInt64(&m.totalErrors)
	in := atomic.LoadInt64(&m.totalInputTokens)
	out := atomic.LoadInt64(&m.totalOutputTokens)

	rates := GetCostRate(m.name)
	return map[string]interface{}{
		"total_calls":        calls,
		"total_errors":       errs,
		"input_tokens":       in,
		"output_tokens":      out,
		"estimated_cost_usd": float64(in)/1_000_000.0*rates.InputPerMillion + float64(out)/1_000_000.0*rates.OutputPerMillion,
	}
}
