package media

import (
	"math"

	"github.com/pion/webrtc/v4"
)

// Re-export pion's RTPCodecType as the media kind tag.
type RTPCodecType = webrtc.RTPCodecType

const (
	RTPCodecTypeUnknown = webrtc.RTPCodecTypeUnknown
	RTPCodecTypeAudio   = webrtc.RTPCodecTypeAudio
	RTPCodecTypeVideo   = webrtc.RTPCodecTypeVideo
)

// NoPTS marks a frame without a usable presentation timestamp.
const NoPTS = int64(math.MinInt64)

// Rational is an exact time base expressed as Num/Den seconds per tick.
type Rational struct {
	Num int
	Den int
}

// Seconds converts a tick count in this time base to seconds.
func (r Rational) Seconds(ticks int64) float64 {
	if r.Den == 0 {
		return math.NaN()
	}
	return float64(ticks) * float64(r.Num) / float64(r.Den)
}

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420  PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                     // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGB24                    // Packed RGB, 3 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGB24:
		return "RGB24"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3
	case PixelFormatNV12:
		return 2
	case PixelFormatRGB24:
		return 1
	default:
		return 0
	}
}

// AudioFormat represents audio sample formats.
type AudioFormat int

const (
	AudioFormatS16 AudioFormat = iota // Signed 16-bit PCM, interleaved
	AudioFormatF32                    // 32-bit float, interleaved
)

func (a AudioFormat) String() string {
	switch a {
	case AudioFormatS16:
		return "S16"
	case AudioFormatF32:
		return "F32"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a {
	case AudioFormatS16:
		return 2
	case AudioFormatF32:
		return 4
	default:
		return 0
	}
}

// Frame is one decoded audio or video unit with a presentation timestamp.
// The only implementations are *AudioFrame and *VideoFrame; consumers
// dispatch with an exhaustive type switch.
//
// Frames are immutable once handed to a Track: a Relay shares the same
// Frame value across every proxy, so consumers must never modify the
// buffers in place. Use Clone when a mutable copy is needed.
type Frame interface {
	// Kind reports whether this is an audio or video frame.
	Kind() RTPCodecType

	// Time returns the presentation time in seconds, or NaN when the
	// frame carries no usable timestamp.
	Time() float64
}

// VideoFrame is a raw decoded video frame.
type VideoFrame struct {
	Data     [][]byte    // Plane data (1-3 planes depending on format)
	Stride   []int       // Stride for each plane in bytes
	Width    int         // Frame width in pixels
	Height   int         // Frame height in pixels
	Format   PixelFormat // Pixel format
	PTS      int64       // Presentation timestamp in TimeBase ticks, or NoPTS
	TimeBase Rational    // Seconds per PTS tick
}

func (f *VideoFrame) Kind() RTPCodecType { return RTPCodecTypeVideo }

func (f *VideoFrame) Time() float64 {
	if f.PTS == NoPTS {
		return math.NaN()
	}
	return f.TimeBase.Seconds(f.PTS)
}

// Clone creates a deep copy of the video frame.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:     make([][]byte, len(f.Data)),
		Stride:   make([]int, len(f.Stride)),
		Width:    f.Width,
		Height:   f.Height,
		Format:   f.Format,
		PTS:      f.PTS,
		TimeBase: f.TimeBase,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := (width / 2) * (height / 2)
	return ySize + uvSize*2
}

// AudioFrame is a block of raw decoded audio samples.
type AudioFrame struct {
	Data        []byte      // Interleaved sample data
	Format      AudioFormat // Sample format
	Channels    int         // Number of channels (1 = mono, 2 = stereo)
	SampleRate  int         // Samples per second per channel
	SampleCount int         // Number of samples per channel
	PTS         int64       // Presentation timestamp in TimeBase ticks, or NoPTS
	TimeBase    Rational    // Seconds per PTS tick
}

func (f *AudioFrame) Kind() RTPCodecType { return RTPCodecTypeAudio }

func (f *AudioFrame) Time() float64 {
	if f.PTS == NoPTS {
		return math.NaN()
	}
	return f.TimeBase.Seconds(f.PTS)
}

// Clone creates a deep copy of the audio frame.
func (f *AudioFrame) Clone() *AudioFrame {
	clone := *f
	if f.Data != nil {
		clone.Data = make([]byte, len(f.Data))
		copy(clone.Data, f.Data)
	}
	return &clone
}

// Packet is one encoded unit produced by an Encoder and consumed by a
// write container or a packetizer.
type Packet struct {
	Data        []byte   // Encoded payload
	StreamIndex int      // Container stream this packet belongs to
	PTS         int64    // Presentation timestamp in TimeBase ticks
	Duration    int64    // Packet duration in TimeBase ticks (0 = unknown)
	TimeBase    Rational // Seconds per tick
}

// DurationSeconds returns the packet duration as a time.Duration-friendly
// seconds value (0 when unknown).
func (p *Packet) DurationSeconds() float64 {
	if p.Duration <= 0 {
		return 0
	}
	return p.TimeBase.Seconds(p.Duration)
}
