package media

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// feedTrack is a Track fed by the test, used to drive relays and sinks
// without a decoder.
type feedTrack struct {
	kind  RTPCodecType
	ch    chan Frame
	state atomic.Int32
	recvs atomic.Int64
}

func newFeedTrack(kind RTPCodecType) *feedTrack {
	return &feedTrack{kind: kind, ch: make(chan Frame, 1024)}
}

func (t *feedTrack) push(f Frame) { t.ch <- f }
func (t *feedTrack) end()         { close(t.ch) }

func (t *feedTrack) Kind() RTPCodecType { return t.kind }

func (t *feedTrack) Recv(ctx context.Context) (Frame, error) {
	if TrackState(t.state.Load()) != TrackStateLive {
		return nil, ErrStreamEnded
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f, ok := <-t.ch:
		if !ok {
			t.Stop()
			return nil, ErrStreamEnded
		}
		t.recvs.Add(1)
		return f, nil
	}
}

func (t *feedTrack) Stop() {
	t.state.Store(int32(TrackStateEnded))
}

// audioTestFrame builds a 20 ms S16 stereo frame in the normalized
// target format.
func audioTestFrame(pts int64) *AudioFrame {
	return &AudioFrame{
		Data:        make([]byte, audioSamplesPerFrame*audioChannels*2),
		Format:      AudioFormatS16,
		Channels:    audioChannels,
		SampleRate:  audioSampleRate,
		SampleCount: audioSamplesPerFrame,
		PTS:         pts,
		TimeBase:    Rational{1, audioSampleRate},
	}
}

// videoTestFrame builds a small I420 frame with the index stamped into
// the luma plane.
func videoTestFrame(index int, ptsMs int64) *VideoFrame {
	const w, h = 16, 16
	y := make([]byte, w*h)
	for i := range y {
		y[i] = byte(index)
	}
	return &VideoFrame{
		Data:     [][]byte{y, make([]byte, w/2*h/2), make([]byte, w/2*h/2)},
		Stride:   []int{w, w / 2, w / 2},
		Width:    w,
		Height:   h,
		Format:   PixelFormatI420,
		PTS:      ptsMs,
		TimeBase: Rational{1, 1000},
	}
}

// mockContainer records muxed packets and detects concurrent WritePacket
// calls.
type mockContainer struct {
	format string

	mu       sync.Mutex
	packets  []*Packet
	streams  int
	closed   bool
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (c *mockContainer) FormatName() string { return c.format }

func (c *mockContainer) AddStream(codec string, kind RTPCodecType) (Encoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.streams
	c.streams++
	return &mockEncoder{stream: idx, codec: codec}, nil
}

func (c *mockContainer) WritePacket(pkt *Packet) error {
	if c.inFlight.Add(1) > 1 {
		c.overlap.Store(true)
	}
	time.Sleep(time.Millisecond) // widen the race window
	c.inFlight.Add(-1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("container closed")
	}
	c.packets = append(c.packets, pkt)
	return nil
}

func (c *mockContainer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *mockContainer) packetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

// mockEncoder emits one packet per frame and a final flush packet for a
// nil frame.
type mockEncoder struct {
	stream  int
	codec   string
	flushes atomic.Int32
}

func (e *mockEncoder) Encode(f Frame) ([]*Packet, error) {
	if f == nil {
		e.flushes.Add(1)
		return []*Packet{{Data: []byte("flush"), StreamIndex: e.stream}}, nil
	}
	var pts int64
	switch f := f.(type) {
	case *AudioFrame:
		pts = f.PTS
	case *VideoFrame:
		pts = f.PTS
	}
	return []*Packet{{Data: []byte(e.codec), StreamIndex: e.stream, PTS: pts}}, nil
}

// waitUntil polls cond for up to two seconds.
func waitUntil(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
