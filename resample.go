package media

import (
	"encoding/binary"
	"math"
)

// Resampler converts arbitrary decoded audio (sample format, channel
// layout, rate) to a fixed target of interleaved signed 16-bit samples.
// Rate conversion is linear interpolation with the fractional read
// position carried across calls, so concatenated output is continuous.
type Resampler struct {
	rate     int // target sample rate
	channels int // target channel count

	inRate  int
	pos     float64 // fractional read position into the input stream
	prev    []int16 // last input sample (one per channel) from the previous call
	hasPrev bool
}

// NewResampler creates a resampler for the given target rate and channel
// count. Zero values default to 48 kHz stereo.
func NewResampler(rate, channels int) *Resampler {
	if rate <= 0 {
		rate = 48000
	}
	if channels <= 0 {
		channels = 2
	}
	return &Resampler{rate: rate, channels: channels}
}

// Resample converts one decoded frame to the target format. The returned
// frame carries NoPTS; callers regenerate timestamps downstream. Input
// already matching the target is passed through unchanged.
func (r *Resampler) Resample(f *AudioFrame) *AudioFrame {
	if f.Format == AudioFormatS16 && f.Channels == r.channels && f.SampleRate == r.rate {
		return f
	}

	in := r.toTargetLayout(f)

	if f.SampleRate != r.inRate {
		// Rate switch mid-stream: restart interpolation state.
		r.inRate = f.SampleRate
		r.pos = 0
		r.hasPrev = false
	}

	var out []int16
	if f.SampleRate == r.rate {
		out = in
	} else {
		out = r.convertRate(in)
	}

	return &AudioFrame{
		Data:        s16Bytes(out),
		Format:      AudioFormatS16,
		Channels:    r.channels,
		SampleRate:  r.rate,
		SampleCount: len(out) / r.channels,
		PTS:         NoPTS,
		TimeBase:    Rational{1, r.rate},
	}
}

// toTargetLayout decodes the frame to interleaved S16 with the target
// channel count at the input rate. Mono is duplicated across channels;
// layouts wider than the target keep the first channels.
func (r *Resampler) toTargetLayout(f *AudioFrame) []int16 {
	out := make([]int16, f.SampleCount*r.channels)
	for i := 0; i < f.SampleCount; i++ {
		for c := 0; c < r.channels; c++ {
			src := c
			if src >= f.Channels {
				src = f.Channels - 1
			}
			out[i*r.channels+c] = sampleS16(f, i*f.Channels+src)
		}
	}
	return out
}

// sampleS16 reads sample index i (across all channels) as S16.
func sampleS16(f *AudioFrame, i int) int16 {
	switch f.Format {
	case AudioFormatS16:
		return int16(binary.LittleEndian.Uint16(f.Data[i*2:]))
	case AudioFormatF32:
		v := math.Float32frombits(binary.LittleEndian.Uint32(f.Data[i*4:]))
		switch {
		case v >= 1:
			return math.MaxInt16
		case v <= -1:
			return math.MinInt16
		default:
			return int16(v * 32767)
		}
	default:
		return 0
	}
}

// convertRate linearly interpolates interleaved samples from the input
// rate to the target rate.
func (r *Resampler) convertRate(in []int16) []int16 {
	ch := r.channels
	n := len(in) / ch
	if n == 0 {
		return nil
	}

	// The virtual input stream is prev (index -1) followed by in.
	step := float64(r.inRate) / float64(r.rate)
	out := make([]int16, 0, (int(float64(n)/step)+2)*ch)

	pos := r.pos
	if !r.hasPrev {
		pos = 0
	}
	for ; pos <= float64(n-1); pos += step {
		i := int(math.Floor(pos))
		frac := pos - float64(i)
		for c := 0; c < ch; c++ {
			var s0 int16
			if i < 0 {
				s0 = r.prev[c]
			} else {
				s0 = in[i*ch+c]
			}
			s1 := s0
			if i+1 < n {
				s1 = in[(i+1)*ch+c]
			}
			out = append(out, int16(float64(s0)+(float64(s1)-float64(s0))*frac))
		}
	}
	r.pos = pos - float64(n)

	if r.prev == nil {
		r.prev = make([]int16, ch)
	}
	copy(r.prev, in[(n-1)*ch:])
	r.hasPrev = true

	return out
}

// sampleFIFO buffers interleaved S16 sample data so fixed-size frames can
// be cut from a bursty decoder; the remainder persists to the next write.
type sampleFIFO struct {
	sampleSize int // bytes per sample across all channels
	data       []byte
}

func newSampleFIFO(channels int) *sampleFIFO {
	return &sampleFIFO{sampleSize: channels * 2}
}

// Write appends interleaved sample data.
func (q *sampleFIFO) Write(data []byte) {
	q.data = append(q.data, data...)
}

// Len returns the number of buffered samples per channel.
func (q *sampleFIFO) Len() int {
	return len(q.data) / q.sampleSize
}

// Read removes and returns exactly n samples per channel, or nil when
// fewer are buffered.
func (q *sampleFIFO) Read(n int) []byte {
	want := n * q.sampleSize
	if len(q.data) < want {
		return nil
	}
	out := make([]byte, want)
	copy(out, q.data[:want])
	q.data = q.data[:copy(q.data, q.data[want:])]
	return out
}

// s16Bytes encodes interleaved samples as little-endian PCM.
func s16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// s16FromBytes decodes little-endian PCM into interleaved samples.
func s16FromBytes(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}
