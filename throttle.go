package media

import (
	"context"
	"math"
	"sync"
	"time"
)

// PlaybackThrottle paces frame delivery to real time. The first frame
// anchors the wall clock to the media timeline; each later frame is held
// until its presentation time comes due. Live sources skip throttling and
// never construct one.
type PlaybackThrottle struct {
	mu      sync.Mutex
	started bool
	start   time.Time
}

// NewPlaybackThrottle creates an unanchored throttle.
func NewPlaybackThrottle() *PlaybackThrottle {
	return &PlaybackThrottle{}
}

// Wait blocks until the frame at frameTime (seconds on the media
// timeline) is due for delivery. Frames without a usable time (NaN) pass
// through immediately.
func (p *PlaybackThrottle) Wait(ctx context.Context, frameTime float64) error {
	if math.IsNaN(frameTime) {
		return nil
	}

	p.mu.Lock()
	if !p.started {
		p.started = true
		p.start = time.Now().Add(-durationSeconds(frameTime))
		p.mu.Unlock()
		return nil
	}
	due := p.start.Add(durationSeconds(frameTime))
	p.mu.Unlock()

	wait := time.Until(due)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func durationSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
