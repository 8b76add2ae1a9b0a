package chat

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedSender spaces outbound messages at least interval apart.
type RateLimitedSender struct {
	next    Sender
	limiter *rate.Limiter
}

// NewRateLimitedSender wraps next. An interval of zero disables limiting.
func NewRateLimitedSender(next Sender, interval time.Duration) *RateLimitedSender {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimitedSender{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (s *RateLimitedSender) Send(ctx context.Context, chatID, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.next.Send(ctx, chatID, text)
}
