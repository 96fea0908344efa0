package embeddings

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an underlying Embedder with a token bucket.
type RateLimited struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond requests per second with the given burst.
func NewRateLimited(next Embedder, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Embed waits for a token, or for ctx to end, then delegates.
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Embed(ctx, text)
}
