package media

import (
	"context"
	"errors"
	"sync"
)

// ErrStreamEnded is returned by Recv once a track has ended or been
// stopped. It is terminal: every later Recv fails the same way. A clean
// end of file and an unrecoverable decode error both surface as
// ErrStreamEnded; consumers cannot tell them apart.
var ErrStreamEnded = errors.New("media: stream ended")

// TrackState represents the state of a track.
type TrackState int

const (
	TrackStateLive  TrackState = iota // Track is producing frames
	TrackStateEnded                   // Track has ended or was stopped
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Track is a single-reader sequence of decoded frames for one media kind.
//
// Recv suspends the caller until a frame is available and returns
// ErrStreamEnded once the track is over. A Track supports exactly one
// logical consumer; Recv is not safe for concurrent callers on the same
// instance. Stop releases the track's claim on its producer.
type Track interface {
	// Kind reports the media kind carried by this track.
	Kind() RTPCodecType

	// Recv returns the next frame. It blocks until a frame arrives, the
	// context is cancelled, or the stream ends.
	Recv(ctx context.Context) (Frame, error)

	// Stop marks the track ended and tells the producer this consumer no
	// longer needs frames. Safe to call more than once.
	Stop()
}

// frameQueue is an unbounded FIFO used to hand frames to relay proxies.
// One goroutine pushes, one pops; Push never blocks.
type frameQueue struct {
	mu    sync.Mutex
	items []Frame
	wake  chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{wake: make(chan struct{}, 1)}
}

// Push appends a frame and wakes a blocked Pop.
func (q *frameQueue) Push(f Frame) {
	q.mu.Lock()
	q.items = append(q.items, f)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest frame, blocking until one is
// available or the context is cancelled.
func (q *frameQueue) Pop(ctx context.Context) (Frame, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			f := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return f, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}
