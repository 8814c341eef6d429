package media

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/pion/rtp"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"golang.org/x/sync/errgroup"
)

// RTPPacket is an alias to pion's rtp.Packet.
type RTPPacket = rtp.Packet

// RTPWriter writes RTP packets to a transport.
type RTPWriter interface {
	WriteRTP(p *RTPPacket) error
}

// RTPTrackConfig binds a track to an encoder and a payload format for RTP
// packetization.
type RTPTrackConfig struct {
	Encoder     Encoder       // Produces the encoded bitstream
	Payloader   rtp.Payloader // Codec-specific RTP payloader
	PayloadType uint8         // Negotiated payload type
	SSRC        uint32        // Stream SSRC
	ClockRate   uint32        // RTP clock rate (90000 video, 48000 Opus)
	MTU         uint16        // Max packet size (default 1200)
}

// RTPSink encodes track frames and sends them out as RTP packets, the
// network-sender end of the bridge. One packetizer task per track.
type RTPSink struct {
	log    *slog.Logger
	writer RTPWriter

	mu     sync.Mutex
	tracks map[Track]*rtpStream
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
}

type rtpStream struct {
	cfg        RTPTrackConfig
	packetizer rtp.Packetizer
	running    bool
}

// NewRTPSink creates a sink writing packets to w.
func NewRTPSink(w RTPWriter) *RTPSink {
	return &RTPSink{
		log:    slog.With("component", "rtp-sink"),
		writer: w,
		tracks: make(map[Track]*rtpStream),
	}
}

// AddTrack registers a track. The generic Sink form uses no encoder and
// rejects the track; use AddTrackConfig.
func (s *RTPSink) AddTrack(t Track) error {
	return fmt.Errorf("media: RTPSink needs an encoder and payloader, use AddTrackConfig")
}

// AddTrackConfig registers a track with its packetization config.
func (s *RTPSink) AddTrackConfig(t Track, cfg RTPTrackConfig) error {
	if cfg.Encoder == nil || cfg.Payloader == nil {
		return fmt.Errorf("media: encoder and payloader are required")
	}
	if cfg.ClockRate == 0 {
		return fmt.Errorf("media: clock rate is required")
	}
	if cfg.MTU == 0 {
		cfg.MTU = 1200
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[t]; ok {
		return nil
	}
	s.tracks[t] = &rtpStream{
		cfg: cfg,
		packetizer: rtp.NewPacketizer(
			cfg.MTU,
			cfg.PayloadType,
			cfg.SSRC,
			cfg.Payloader,
			rtp.NewRandomSequencer(),
			cfg.ClockRate,
		),
	}
	return nil
}

// Start spawns a send task for every registered track.
func (s *RTPSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.g = new(errgroup.Group)
	}

	for t, st := range s.tracks {
		if st.running {
			continue
		}
		st.running = true
		track, stream, ctx := t, st, s.ctx
		s.g.Go(func() error {
			return s.send(ctx, track, stream)
		})
	}
	return nil
}

func (s *RTPSink) send(ctx context.Context, track Track, st *rtpStream) error {
	for {
		f, err := track.Recv(ctx)
		if err != nil {
			return nil
		}
		pkts, err := st.cfg.Encoder.Encode(f)
		if err != nil {
			s.log.Warn("encode failed, dropping track", "kind", track.Kind(), "err", err)
			return nil
		}
		for _, pkt := range pkts {
			samples := uint32(math.Round(pkt.DurationSeconds() * float64(st.cfg.ClockRate)))
			for _, rp := range st.packetizer.Packetize(pkt.Data, samples) {
				if err := s.writer.WriteRTP(rp); err != nil {
					s.log.Warn("rtp write failed, dropping track", "err", err)
					return nil
				}
			}
		}
	}
}

// Stop cancels all send tasks and clears state.
func (s *RTPSink) Stop() error {
	s.mu.Lock()
	g, cancel := s.g, s.cancel
	s.g, s.cancel, s.ctx = nil, nil, nil
	s.tracks = make(map[Track]*rtpStream)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if g != nil {
		return g.Wait()
	}
	return nil
}

var _ Sink = (*RTPSink)(nil)

// SampleWriter receives encoded media samples. *webrtc.TrackLocalStaticSample
// satisfies this, making SampleSink the glue between a Track and a WebRTC
// peer connection.
type SampleWriter interface {
	WriteSample(s pionmedia.Sample) error
}

// SampleSink encodes track frames and writes them as timed samples.
type SampleSink struct {
	log *slog.Logger

	mu     sync.Mutex
	tracks map[Track]*sampleStream
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
}

type sampleStream struct {
	enc     Encoder
	writer  SampleWriter
	running bool
}

// NewSampleSink creates an empty sample sink.
func NewSampleSink() *SampleSink {
	return &SampleSink{
		log:    slog.With("component", "sample-sink"),
		tracks: make(map[Track]*sampleStream),
	}
}

// AddTrack registers a track. The generic Sink form uses no encoder and
// rejects the track; use AddTrackWriter.
func (s *SampleSink) AddTrack(t Track) error {
	return fmt.Errorf("media: SampleSink needs an encoder and writer, use AddTrackWriter")
}

// AddTrackWriter registers a track with its encoder and sample writer.
func (s *SampleSink) AddTrackWriter(t Track, enc Encoder, w SampleWriter) error {
	if enc == nil || w == nil {
		return fmt.Errorf("media: encoder and writer are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracks[t]; ok {
		return nil
	}
	s.tracks[t] = &sampleStream{enc: enc, writer: w}
	return nil
}

// Start spawns a send task for every registered track.
func (s *SampleSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.g = new(errgroup.Group)
	}

	for t, st := range s.tracks {
		if st.running {
			continue
		}
		st.running = true
		track, stream, ctx := t, st, s.ctx
		s.g.Go(func() error {
			for {
				f, err := track.Recv(ctx)
				if err != nil {
					return nil
				}
				pkts, err := stream.enc.Encode(f)
				if err != nil {
					s.log.Warn("encode failed, dropping track", "kind", track.Kind(), "err", err)
					return nil
				}
				for _, pkt := range pkts {
					sample := pionmedia.Sample{
						Data:     pkt.Data,
						Duration: time.Duration(pkt.DurationSeconds() * float64(time.Second)),
					}
					if err := stream.writer.WriteSample(sample); err != nil {
						s.log.Warn("sample write failed, dropping track", "err", err)
						return nil
					}
				}
			}
		})
	}
	return nil
}

// Stop cancels all send tasks and clears state.
func (s *SampleSink) Stop() error {
	s.mu.Lock()
	g, cancel := s.g, s.cancel
	s.g, s.cancel, s.ctx = nil, nil, nil
	s.tracks = make(map[Track]*sampleStream)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if g != nil {
		return g.Wait()
	}
	return nil
}

var _ Sink = (*SampleSink)(nil)
