package media

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Encoder turns decoded frames into encoded packets for a container or
// packetizer. Encoding a nil frame flushes any buffered output.
type Encoder interface {
	Encode(f Frame) ([]*Packet, error)
}

// WriteContainer is the opaque encode+mux capability backing a Recorder.
// AddStream selects a codec for one stream; WritePacket muxes a packet
// into the output. Callers must serialize WritePacket and Close.
type WriteContainer interface {
	// FormatName returns the container format name.
	FormatName() string

	// AddStream adds an output stream using the named codec and returns
	// its encoder. Must be called before the first WritePacket.
	AddStream(codec string, kind RTPCodecType) (Encoder, error)

	// WritePacket muxes one encoded packet. Never called concurrently.
	WritePacket(pkt *Packet) error

	// Close finalizes and releases the container.
	Close() error
}

// WriteContainerFactory opens a write container for an output locator.
type WriteContainerFactory func(locator string, options map[string]string) (WriteContainer, error)

var writeContainerRegistry = struct {
	mu        sync.RWMutex
	factories map[string]WriteContainerFactory
}{factories: make(map[string]WriteContainerFactory)}

// RegisterWriteContainerFormat registers a write container factory for a
// format name.
func RegisterWriteContainerFormat(format string, factory WriteContainerFactory) {
	writeContainerRegistry.mu.Lock()
	defer writeContainerRegistry.mu.Unlock()
	writeContainerRegistry.factories[format] = factory
}

// OpenWriteContainer opens a write container. When format is empty it is
// guessed from the locator's extension; image extensions map to the
// image-sequence format.
func OpenWriteContainer(locator, format string, options map[string]string) (WriteContainer, error) {
	if format == "" {
		format = guessWriteFormat(locator)
	}
	if format == "" {
		return nil, fmt.Errorf("%w: cannot guess output format for %q", ErrFormatNotSupported, locator)
	}

	writeContainerRegistry.mu.RLock()
	factory, ok := writeContainerRegistry.factories[format]
	writeContainerRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFormatNotSupported, format)
	}
	return factory(locator, options)
}

func guessWriteFormat(locator string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(locator), ".")) {
	case "png", "jpg", "jpeg", "bmp":
		return "image2"
	case "":
		return ""
	default:
		return strings.ToLower(strings.TrimPrefix(filepath.Ext(locator), "."))
	}
}

// codecForTrack selects an encoder codec for a track kind and container
// format. Lossless audio containers force uncompressed audio and the
// image-sequence container forces a still-image codec.
func codecForTrack(kind RTPCodecType, format string) string {
	switch kind {
	case RTPCodecTypeAudio:
		switch format {
		case "wav", "alsa":
			return "pcm_s16le"
		case "mp3":
			return "mp3"
		default:
			return "aac"
		}
	case RTPCodecTypeVideo:
		if format == "image2" {
			return "png"
		}
		return "h264"
	default:
		return ""
	}
}

// Recorder writes the media from its tracks into one output container.
// Each track gets an encoder matched to its kind and the container's
// format; all muxing into the shared container is serialized.
type Recorder struct {
	log       *slog.Logger
	container WriteContainer

	muxMu sync.Mutex // serializes WritePacket across track tasks

	mu      sync.Mutex
	streams map[Track]*recorderStream
	ctx     context.Context
	cancel  context.CancelFunc
	g       *errgroup.Group
	closed  bool
}

type recorderStream struct {
	enc     Encoder
	running bool
}

// NewRecorder opens an output container at locator. When format is empty
// it is guessed from the extension.
func NewRecorder(locator, format string, options map[string]string) (*Recorder, error) {
	container, err := OpenWriteContainer(locator, format, options)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		log:       slog.With("component", "recorder", "output", locator),
		container: container,
		streams:   make(map[Track]*recorderStream),
	}, nil
}

// AddTrack adds a track to be recorded, selecting an encoder matched to
// the track's kind and the container format.
func (r *Recorder) AddTrack(t Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("media: recorder is closed")
	}
	if _, ok := r.streams[t]; ok {
		return nil
	}

	codec := codecForTrack(t.Kind(), r.container.FormatName())
	if codec == "" {
		return fmt.Errorf("media: no codec for kind %v in format %q", t.Kind(), r.container.FormatName())
	}
	enc, err := r.container.AddStream(codec, t.Kind())
	if err != nil {
		return err
	}
	r.streams[t] = &recorderStream{enc: enc}
	return nil
}

// Start spawns a record task for every track that does not have one yet.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("media: recorder is closed")
	}
	if r.cancel == nil {
		r.ctx, r.cancel = context.WithCancel(context.Background())
		r.g = new(errgroup.Group)
	}

	for t, s := range r.streams {
		if s.running {
			continue
		}
		s.running = true
		track, stream, ctx := t, s, r.ctx
		r.g.Go(func() error {
			return r.record(ctx, track, stream)
		})
	}
	return nil
}

func (r *Recorder) record(ctx context.Context, track Track, s *recorderStream) error {
	for {
		f, err := track.Recv(ctx)
		if err != nil {
			return nil
		}
		pkts, err := s.enc.Encode(f)
		if err != nil {
			r.log.Warn("encode failed, dropping track", "kind", track.Kind(), "err", err)
			return nil
		}
		if err := r.writePackets(pkts); err != nil {
			r.log.Warn("mux failed, dropping track", "kind", track.Kind(), "err", err)
			return nil
		}
	}
}

func (r *Recorder) writePackets(pkts []*Packet) error {
	r.muxMu.Lock()
	defer r.muxMu.Unlock()
	for _, pkt := range pkts {
		if err := r.container.WritePacket(pkt); err != nil {
			return err
		}
	}
	return nil
}

// Stop cancels the record tasks, flushes each encoder, muxes the flushed
// packets, and closes the container. Safe to call more than once.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	g, cancel := r.g, r.cancel
	streams := make([]*recorderStream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.streams = make(map[Track]*recorderStream)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if g != nil {
		g.Wait()
	}

	var firstErr error
	for _, s := range streams {
		pkts, err := s.enc.Encode(nil)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := r.writePackets(pkts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.container.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

var _ Sink = (*Recorder)(nil)
