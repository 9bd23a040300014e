package frame

import (
	"context"

	"golang.org/x/time/rate"
)

type limitedSource struct {
	Source
	limiter *rate.Limiter
}

// Limit bounds how fast frames are pulled from src. A non-positive fps
// returns src unchanged.
func Limit(src Source, fps float64) Source {
	if fps <= 0 {
		return src
	}
	return &limitedSource{
		Source:  src,
		limiter: rate.NewLimiter(rate.Limit(fps), 1),
	}
}

// Next waits for the next token. When the token falls past the context
// deadline no frame can be delivered in time, so it waits out the deadline
// and reports it instead of the limiter's refusal.
func (l *limitedSource) Next(ctx context.Context) (Frame, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			<-ctx.Done()
		}
		return Frame{}, ctx.Err()
	}
	return l.Source.Next(ctx)
}
