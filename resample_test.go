package media

import (
	"encoding/binary"
	"math"
	"testing"
)

func s16Frame(samples []int16, channels, rate int) *AudioFrame {
	return &AudioFrame{
		Data:        s16Bytes(samples),
		Format:      AudioFormatS16,
		Channels:    channels,
		SampleRate:  rate,
		SampleCount: len(samples) / channels,
		PTS:         0,
		TimeBase:    Rational{1, rate},
	}
}

func TestResamplePassthrough(t *testing.T) {
	r := NewResampler(48000, 2)
	in := s16Frame([]int16{1, 2, 3, 4}, 2, 48000)
	out := r.Resample(in)
	if out != in {
		t.Fatal("matching input must be passed through unchanged")
	}
}

func TestResampleMonoToStereo(t *testing.T) {
	r := NewResampler(48000, 2)
	out := r.Resample(s16Frame([]int16{100, -200, 300}, 1, 48000))

	if out.Channels != 2 || out.SampleRate != 48000 || out.SampleCount != 3 {
		t.Fatalf("got %d ch / %d Hz / %d samples", out.Channels, out.SampleRate, out.SampleCount)
	}
	got := s16FromBytes(out.Data)
	want := []int16{100, 100, -200, -200, 300, 300}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleDownmixKeepsFirstChannels(t *testing.T) {
	r := NewResampler(48000, 2)
	// 4-channel input: only the first two channels survive.
	out := r.Resample(s16Frame([]int16{1, 2, 3, 4, 5, 6, 7, 8}, 4, 48000))
	got := s16FromBytes(out.Data)
	want := []int16{1, 2, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleF32ToS16(t *testing.T) {
	data := make([]byte, 4*4)
	for i, v := range []float32{0, 0.5, 1.5, -1.5} {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	in := &AudioFrame{
		Data:        data,
		Format:      AudioFormatF32,
		Channels:    1,
		SampleRate:  48000,
		SampleCount: 4,
		TimeBase:    Rational{1, 48000},
	}

	r := NewResampler(48000, 1)
	got := s16FromBytes(r.Resample(in).Data)
	want := []int16{0, 16383, math.MaxInt16, math.MinInt16}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleRateConversionSampleCount(t *testing.T) {
	// One second of 44.1 kHz mono fed in 441-sample chunks must yield very
	// close to 48000 output samples with no per-chunk truncation drift.
	r := NewResampler(48000, 2)
	total := 0
	for i := 0; i < 100; i++ {
		chunk := make([]int16, 441)
		out := r.Resample(s16Frame(chunk, 1, 44100))
		total += out.SampleCount
	}
	if total < 47990 || total > 48010 {
		t.Fatalf("got %d samples for one second of input, want about 48000", total)
	}
}

func TestResampleContinuityAcrossChunks(t *testing.T) {
	// A ramp split into chunks must resample to a monotonic ramp: any
	// discontinuity at a chunk boundary shows up as a backwards step.
	r := NewResampler(48000, 1)
	var out []int16
	v := int16(0)
	for chunk := 0; chunk < 10; chunk++ {
		in := make([]int16, 100)
		for i := range in {
			in[i] = v
			v += 4
		}
		out = append(out, s16FromBytes(r.Resample(s16Frame(in, 1, 32000)).Data)...)
	}
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Fatalf("sample %d: %d < %d, discontinuity at chunk boundary", i, out[i], out[i-1])
		}
	}
}

func TestSampleFIFO(t *testing.T) {
	q := newSampleFIFO(2)

	if got := q.Read(1); got != nil {
		t.Fatal("read from empty fifo must return nil")
	}

	q.Write(s16Bytes([]int16{1, 2, 3, 4, 5, 6}))
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}

	got := s16FromBytes(q.Read(2))
	want := []int16{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
	if q.Len() != 1 {
		t.Fatalf("Len after read = %d, want 1", q.Len())
	}
	if q.Read(2) != nil {
		t.Fatal("short fifo must not produce a partial frame")
	}

	// The remainder joins the next write.
	q.Write(s16Bytes([]int16{7, 8}))
	got = s16FromBytes(q.Read(2))
	want = []int16{5, 6, 7, 8}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}
