package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Audio target format: every source's audio is normalized to S16 stereo
// 48 kHz and cut into 20 ms frames.
const (
	audioSampleRate      = 48000
	audioChannels        = 2
	audioSamplesPerFrame = audioSampleRate / 50 // 20 ms
)

// trackQueueDepth bounds the worker-to-consumer handoff channel. Together
// with the wall-clock throttle and the decode-ahead cap it limits how far
// the decoder can run ahead of a slow consumer.
const trackQueueDepth = 64

// PlayerTrack is a Track backed by a Player's decode worker. The first
// Recv lazily starts the worker; Stop releases this consumer's claim and,
// once no track needs frames, shuts the worker down and closes the
// container.
type PlayerTrack struct {
	kind   RTPCodecType
	player *Player

	state   atomic.Int32
	started atomic.Bool

	ch       chan Frame
	stopped  chan struct{}
	stopOnce sync.Once

	throttle *PlaybackThrottle

	// Video decode-ahead cap bookkeeping.
	maxAhead  atomic.Int64
	delivered atomic.Int64
}

func newPlayerTrack(p *Player, kind RTPCodecType, throttled bool) *PlayerTrack {
	t := &PlayerTrack{
		kind:    kind,
		player:  p,
		ch:      make(chan Frame, trackQueueDepth),
		stopped: make(chan struct{}),
	}
	if throttled {
		t.throttle = NewPlaybackThrottle()
	}
	return t
}

// Kind reports the media kind carried by this track.
func (t *PlayerTrack) Kind() RTPCodecType { return t.kind }

// State returns the current track state.
func (t *PlayerTrack) State() TrackState { return TrackState(t.state.Load()) }

// SetMaxFramesAhead caps how many video frames the decoder may run ahead
// of this consumer. Values <= 0 mean unlimited. Raising the cap resumes a
// paused decoder.
func (t *PlayerTrack) SetMaxFramesAhead(n int64) {
	t.maxAhead.Store(n)
}

// Recv returns the next decoded frame. The first call starts the owning
// Player's decode worker. For non-real-time sources delivery is paced to
// the media timeline.
func (t *PlayerTrack) Recv(ctx context.Context) (Frame, error) {
	if t.State() != TrackStateLive {
		return nil, ErrStreamEnded
	}
	if !t.player.startTrack(t) {
		t.Stop()
		return nil, ErrStreamEnded
	}

	var f Frame
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f = <-t.ch:
	}
	if f == nil {
		t.Stop()
		return nil, ErrStreamEnded
	}
	t.delivered.Add(1)

	if t.throttle != nil {
		if err := t.throttle.Wait(ctx, f.Time()); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Stop marks the track ended and releases its claim on the decode worker.
func (t *PlayerTrack) Stop() {
	t.state.Store(int32(TrackStateEnded))
	t.stopOnce.Do(func() {
		close(t.stopped)
		t.player.stopTrack(t)
	})
}

var _ Track = (*PlayerTrack)(nil)

// Player reads audio and/or video from a container or capture device on a
// dedicated decode goroutine and exposes the result as Tracks.
//
// The worker starts on the first Recv of either track and is shared by
// both. The first discovered substream of each kind is exposed; extras
// are ignored. Options are copied at construction and forwarded opaquely
// to the demuxer.
type Player struct {
	log       *slog.Logger
	demux     Demuxer
	throttled bool

	audio *PlayerTrack
	video *PlayerTrack

	mu      sync.Mutex
	started map[*PlayerTrack]struct{}
	quit    chan struct{}
	done    chan struct{}
	closed  bool
}

// NewPlayer opens the media at locator. When format is empty it is
// guessed from the locator.
func NewPlayer(locator, format string, options map[string]string) (*Player, error) {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[k] = v
	}

	demux, err := OpenDemuxer(locator, format, opts)
	if err != nil {
		return nil, err
	}

	p := &Player{
		log:       slog.With("component", "player", "source", locator),
		demux:     demux,
		throttled: !IsRealTimeFormat(demux.FormatName()),
		started:   make(map[*PlayerTrack]struct{}),
	}
	for _, s := range demux.Streams() {
		switch s.Kind {
		case RTPCodecTypeAudio:
			if p.audio == nil {
				p.audio = newPlayerTrack(p, RTPCodecTypeAudio, p.throttled)
			}
		case RTPCodecTypeVideo:
			if p.video == nil {
				p.video = newPlayerTrack(p, RTPCodecTypeVideo, p.throttled)
			}
		}
	}
	return p, nil
}

// Audio returns the audio track, or nil if the source has none.
func (p *Player) Audio() *PlayerTrack { return p.audio }

// Video returns the video track, or nil if the source has none.
func (p *Player) Video() *PlayerTrack { return p.video }

// Close stops both tracks and releases the container.
func (p *Player) Close() error {
	if p.audio != nil {
		p.audio.Stop()
	}
	if p.video != nil {
		p.video.Stop()
	}

	// A source with no consumable tracks never arms the stopTrack close
	// path, so close the container here.
	p.mu.Lock()
	needClose := !p.closed
	p.closed = true
	p.mu.Unlock()
	if needClose {
		return p.demux.Close()
	}
	return nil
}

// startTrack registers a consumer and lazily spawns the decode worker.
// Returns false when the container has already been released.
func (p *Player) startTrack(t *PlayerTrack) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if _, ok := p.started[t]; !ok {
		p.started[t] = struct{}{}
		t.started.Store(true)
	}
	if p.quit == nil {
		p.log.Debug("starting decode worker")
		p.quit = make(chan struct{})
		p.done = make(chan struct{})
		go p.worker(p.quit, p.done)
	}
	return true
}

// stopTrack removes a consumer. When the last one leaves, the worker is
// signalled, joined, and only then is the container closed: the worker
// must never observe a closed handle.
func (p *Player) stopTrack(t *PlayerTrack) {
	t.started.Store(false)

	p.mu.Lock()
	delete(p.started, t)

	var join chan struct{}
	closeDemux := false
	if len(p.started) == 0 {
		if p.quit != nil {
			p.log.Debug("stopping decode worker")
			close(p.quit)
			p.quit = nil
			join = p.done
		}
		if !p.closed {
			p.closed = true
			closeDemux = true
		}
	}
	p.mu.Unlock()

	if join != nil {
		<-join
	}
	if closeDemux {
		p.demux.Close()
	}
}

// worker is the decode loop. It owns the demuxer handle exclusively and
// hands frames to consumers through their channels, never touching
// consumer-side structures directly.
func (p *Player) worker(quit, done chan struct{}) {
	defer close(done)

	// Blocking decode owns this thread for the worker's lifetime.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var (
		resampler     = NewResampler(audioSampleRate, audioChannels)
		fifo          = newSampleFIFO(audioChannels)
		audioTimeBase = Rational{1, audioSampleRate}
		audioSamples  int64

		videoFirstPTS = NoPTS
		videoIndex    int64

		frameTime = math.NaN()
		start     = time.Now()
	)

	p.log.Debug("decode worker started")
	defer p.log.Debug("decode worker stopped")

	for {
		select {
		case <-quit:
			return
		default:
		}

		f, err := p.demux.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrTryAgain) {
				if !sleepOrQuit(quit, 10*time.Millisecond) {
					return
				}
				continue
			}
			if !errors.Is(err, io.EOF) {
				p.log.Debug("decode error, ending stream", "err", err)
			}
			// Decode failure and clean end of file end every active
			// track the same way.
			p.finish(quit)
			return
		}

		// Non-real-time sources may decode at most one second ahead of
		// wall clock.
		if p.throttled && !math.IsNaN(frameTime) && frameTime > time.Since(start).Seconds()+1 {
			if !sleepOrQuit(quit, 100*time.Millisecond) {
				return
			}
		}

		switch f := f.(type) {
		case *AudioFrame:
			t := p.audio
			if t == nil || !t.started.Load() {
				continue
			}
			fifo.Write(resampler.Resample(f).Data)
			for {
				data := fifo.Read(audioSamplesPerFrame)
				if data == nil {
					break
				}
				// Timestamps are regenerated from the running sample
				// count; upstream jitter never reaches consumers.
				out := &AudioFrame{
					Data:        data,
					Format:      AudioFormatS16,
					Channels:    audioChannels,
					SampleRate:  audioSampleRate,
					SampleCount: audioSamplesPerFrame,
					PTS:         audioSamples,
					TimeBase:    audioTimeBase,
				}
				audioSamples += int64(audioSamplesPerFrame)
				frameTime = out.Time()
				if !p.deliver(t, out, quit) {
					return
				}
			}

		case *VideoFrame:
			t := p.video
			if t == nil || !t.started.Load() {
				continue
			}
			if !p.waitDecodeAhead(t, videoIndex, quit) {
				return
			}
			if f.PTS == NoPTS {
				p.log.Warn("skipping video frame with no pts")
				continue
			}
			// Capture devices rarely start at pts 0; shift the origin so
			// playback starts at zero.
			if videoFirstPTS == NoPTS {
				videoFirstPTS = f.PTS
			}
			f.PTS -= videoFirstPTS
			frameTime = f.Time()
			videoIndex++
			if !p.deliver(t, f, quit) {
				return
			}
		}
	}
}

// deliver hands a frame (or the nil end sentinel) to a track. Returns
// false when the worker should exit.
func (p *Player) deliver(t *PlayerTrack, f Frame, quit chan struct{}) bool {
	select {
	case t.ch <- f:
		return true
	case <-t.stopped:
		// Consumer left; drop the frame.
		return true
	case <-quit:
		return false
	}
}

// finish pushes the end sentinel into every track, started or not: a
// consumer whose first Recv comes after the worker exited must still
// observe the end of stream. A never-started track's channel is empty,
// so the buffered send cannot block.
func (p *Player) finish(quit chan struct{}) {
	for _, t := range []*PlayerTrack{p.audio, p.video} {
		if t == nil {
			continue
		}
		p.deliver(t, nil, quit)
	}
}

// waitDecodeAhead blocks while the video decoder is more than maxAhead
// frames past what the consumer has received, polling the quit signal
// each cycle. Returns false when the worker should exit.
func (p *Player) waitDecodeAhead(t *PlayerTrack, index int64, quit chan struct{}) bool {
	logged := false
	for {
		limit := t.maxAhead.Load()
		if limit <= 0 || index-t.delivered.Load() <= limit {
			break
		}
		if !logged {
			p.log.Info("decode-ahead cap reached, pausing",
				"decoded", index,
				"delivered", t.delivered.Load(),
				"cap", limit)
			logged = true
		}
		if !sleepOrQuit(quit, 100*time.Millisecond) {
			return false
		}
	}
	if logged {
		p.log.Info("decode resuming")
	}
	return true
}

// sleepOrQuit sleeps for d unless quit closes first. Returns false on
// quit.
func sleepOrQuit(quit chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-quit:
		return false
	case <-timer.C:
		return true
	}
}
