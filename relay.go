package media

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// RelayTrack is a proxy Track handed out by Relay.Subscribe. It is bound
// to exactly one source track and usable like any other Track.
type RelayTrack struct {
	kind  RTPCodecType
	relay *Relay
	src   Track

	state atomic.Int32
	queue *frameQueue
}

// Kind reports the media kind of the proxied source.
func (t *RelayTrack) Kind() RTPCodecType { return t.kind }

// State returns the current track state.
func (t *RelayTrack) State() TrackState { return TrackState(t.state.Load()) }

// Recv returns the next frame relayed from the source. The first call on
// any proxy of a source starts that source's fan-out task.
func (t *RelayTrack) Recv(ctx context.Context) (Frame, error) {
	if t.State() != TrackStateLive {
		return nil, ErrStreamEnded
	}
	t.relay.startProxy(t)

	f, err := t.queue.Pop(ctx)
	if err != nil {
		return nil, err
	}
	if f == nil {
		t.Stop()
		return nil, ErrStreamEnded
	}
	return f, nil
}

// Stop removes this proxy from the fan-out. Other proxies of the same
// source are unaffected.
func (t *RelayTrack) Stop() {
	if t.state.Swap(int32(TrackStateEnded)) == int32(TrackStateEnded) {
		return
	}
	t.relay.stopProxy(t)
}

var _ Track = (*RelayTrack)(nil)

// Relay shares one source Track among many independent consumers without
// re-decoding. Every active proxy observes the source's frames in exactly
// the source's emission order; the frames themselves are shared by
// reference, which is safe because frames are immutable.
//
// A Relay is especially useful for live tracks such as webcams or media
// received over the network.
type Relay struct {
	log *slog.Logger

	mu      sync.Mutex
	proxies map[Track]map[*RelayTrack]struct{}
	tasks   map[Track]struct{}
}

// NewRelay creates an empty relay.
func NewRelay() *Relay {
	return &Relay{
		log:     slog.With("component", "relay"),
		proxies: make(map[Track]map[*RelayTrack]struct{}),
		tasks:   make(map[Track]struct{}),
	}
}

// Subscribe creates a new proxy around the source track. Reading from the
// source does not begin until a proxy calls Recv.
func (r *Relay) Subscribe(src Track) *RelayTrack {
	proxy := &RelayTrack{
		kind:  src.Kind(),
		relay: r,
		src:   src,
		queue: newFrameQueue(),
	}

	r.mu.Lock()
	if _, ok := r.proxies[src]; !ok {
		r.proxies[src] = make(map[*RelayTrack]struct{})
	}
	r.mu.Unlock()

	r.log.Debug("proxy created")
	return proxy
}

// startProxy marks a proxy active and spawns the source's fan-out task if
// none exists. A source has at most one fan-out task regardless of how
// many proxies subscribe.
func (r *Relay) startProxy(p *RelayTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.proxies[p.src]
	if !ok {
		// The fan-out for this source already finished; this proxy will
		// never receive frames.
		p.queue.Push(nil)
		return
	}
	if _, ok := set[p]; !ok {
		set[p] = struct{}{}
		r.log.Debug("proxy started", "proxies", len(set))
	}
	if _, ok := r.tasks[p.src]; !ok {
		r.tasks[p.src] = struct{}{}
		go r.run(p.src)
	}
}

// stopProxy removes a proxy from the active set. The shared fan-out task
// keeps draining the source until end of stream even when the set
// empties.
func (r *Relay) stopProxy(p *RelayTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.proxies[p.src]; ok {
		delete(set, p)
		r.log.Debug("proxy stopped", "proxies", len(set))
	}
}

// run is the fan-out task for one source: it reads the source and
// broadcasts each frame reference into every active proxy's queue, in
// order. On end of stream it broadcasts the sentinel once and drops the
// source's bookkeeping.
func (r *Relay) run(src Track) {
	r.log.Debug("fan-out started")
	defer r.log.Debug("fan-out stopped")

	for {
		f, err := src.Recv(context.Background())
		if err != nil {
			f = nil
		}

		r.mu.Lock()
		for p := range r.proxies[src] {
			p.queue.Push(f)
		}
		if f == nil {
			delete(r.proxies, src)
			delete(r.tasks, src)
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
	}
}
