package embeddings

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Resilient wraps an Embedder with a client side rate limit and bounded retries.
// Every failure it returns wraps ErrEmbeddingUnavailable.
type Resilient struct {
	inner   Embedder
	retry   RetryConfig
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewResilient wraps inner. A non-positive rps disables rate limiting.
func NewResilient(inner Embedder, rc RetryConfig, rps float64, burst int, log *zap.Logger) *Resilient {
	if log == nil {
		log = zap.NewNop()
	}
	if rc.Multiplier <= 0 {
		rc.Multiplier = DefaultRetryConfig.Multiplier
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Resilient{
		inner:   inner,
		retry:   rc,
		limiter: limiter,
		log:     log.Named("embeddings"),
	}
}

func (r *Resilient) ModelVersion() string { return r.inner.ModelVersion() }

func (r *Resilient) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := RetryDo(ctx, r.retry, r.log, func() ([]float32, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return r.inner.Embed(ctx, text)
	})
	if err != nil {
		r.log.Warn("embedding failed",
			zap.String("model", r.inner.ModelVersion()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrEmbeddingUnavailable)
	}
	return vec, nil
}
