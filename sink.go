package media

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Sink is a terminal consumer of tracks: add tracks, start consuming,
// stop. Implementations are Blackhole, Recorder, RTPSink, and SampleSink.
type Sink interface {
	AddTrack(t Track) error
	Start() error
	Stop() error
}

// Blackhole consumes and discards all media from its tracks. Useful to
// keep a source or relay draining when no real consumer is attached.
type Blackhole struct {
	log *slog.Logger

	mu     sync.Mutex
	tracks map[Track]bool // true once a consume task is running
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
}

// NewBlackhole creates an empty blackhole sink.
func NewBlackhole() *Blackhole {
	return &Blackhole{
		log:    slog.With("component", "blackhole"),
		tracks: make(map[Track]bool),
	}
}

// AddTrack registers a track whose media should be discarded.
func (b *Blackhole) AddTrack(t Track) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tracks[t]; !ok {
		b.tracks[t] = false
	}
	return nil
}

// Start spawns a consume task for every track that does not have one yet.
func (b *Blackhole) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel == nil {
		b.ctx, b.cancel = context.WithCancel(context.Background())
		b.g = new(errgroup.Group)
	}

	for t, running := range b.tracks {
		if running {
			continue
		}
		b.tracks[t] = true
		b.log.Debug("draining track", "kind", t.Kind())
		track, ctx := t, b.ctx
		b.g.Go(func() error {
			for {
				if _, err := track.Recv(ctx); err != nil {
					return nil
				}
			}
		})
	}
	return nil
}

// Stop cancels all consume tasks and clears state.
func (b *Blackhole) Stop() error {
	b.mu.Lock()
	g, cancel := b.g, b.cancel
	b.g, b.cancel, b.ctx = nil, nil, nil
	b.tracks = make(map[Track]bool)
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if g != nil {
		return g.Wait()
	}
	return nil
}

var _ Sink = (*Blackhole)(nil)
