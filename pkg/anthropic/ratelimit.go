package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// rateLimitedClient throttles CreateMessage calls with a token bucket so
// gallery fan-out cannot burst past the account's requests-per-minute cap.
type rateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimited wraps client with a request rate limit. rps is requests
// per second; burst is the bucket size.
func NewRateLimited(client Client, rps float64, burst int) Client {
	if rps <= 0 {
		return client
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedClient{
		inner:   client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (c *rateLimitedClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "anthropic: rate limiter wait")
	}
	return c.inner.CreateMessage(ctx, req)
}
