package media

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

func init() {
	RegisterDemuxerFormat("pattern", newPatternDemuxer)
	// Live pattern sources identify as pattern-live and skip the
	// wall-clock throttle like any capture device.
	realTimeFormats["pattern-live"] = struct{}{}
}

// patternDemuxer generates synthetic decoded media: a moving-value video
// pattern and a sine tone. It stands in for a real container during
// development and testing and doubles as a reference Demuxer
// implementation.
//
// Options (all optional):
//
//	kinds                "video", "audio", or "audio,video" (default)
//	duration             stream length in seconds (default 1)
//	rt                   "1" marks the source as live
//	video.fps            frames per second (default 30)
//	video.width          frame width (default 64)
//	video.height         frame height (default 48)
//	video.start_pts      pts of the first video frame in ms (default 0)
//	video.nopts_interval every Nth video frame carries no pts (default 0)
//	audio.rate           input sample rate (default 48000)
//	audio.channels       input channel count (default 2)
//	audio.chunk          samples per decoded chunk (default rate/100)
//	again_interval       every Nth read reports a transient would-block
type patternDemuxer struct {
	live     bool
	duration float64

	hasVideo bool
	fps      int
	width    int
	height   int
	startPTS int64
	noPTSInt int

	hasAudio  bool
	rate      int
	channels  int
	chunk     int
	frequency float64

	videoIndex int64
	audioPos   int64 // samples generated so far
	reads      int64
	againInt   int
	closed     bool
}

func newPatternDemuxer(locator string, options map[string]string) (Demuxer, error) {
	d := &patternDemuxer{
		live:      options["rt"] == "1",
		duration:  optFloat(options, "duration", 1),
		fps:       optInt(options, "video.fps", 30),
		width:     optInt(options, "video.width", 64),
		height:    optInt(options, "video.height", 48),
		startPTS:  int64(optInt(options, "video.start_pts", 0)),
		noPTSInt:  optInt(options, "video.nopts_interval", 0),
		rate:      optInt(options, "audio.rate", 48000),
		channels:  optInt(options, "audio.channels", 2),
		againInt:  optInt(options, "again_interval", 0),
		frequency: 440,
	}
	d.chunk = optInt(options, "audio.chunk", d.rate/100)

	kinds := options["kinds"]
	if kinds == "" {
		kinds = "audio,video"
	}
	for _, k := range strings.Split(kinds, ",") {
		switch strings.TrimSpace(k) {
		case "audio":
			d.hasAudio = true
		case "video":
			d.hasVideo = true
		default:
			return nil, fmt.Errorf("media: unknown pattern kind %q", k)
		}
	}
	return d, nil
}

func (d *patternDemuxer) FormatName() string {
	if d.live {
		return "pattern,pattern-live"
	}
	return "pattern"
}

func (d *patternDemuxer) Streams() []StreamInfo {
	var streams []StreamInfo
	if d.hasVideo {
		streams = append(streams, StreamInfo{Index: len(streams), Kind: RTPCodecTypeVideo, Codec: "rawvideo"})
	}
	if d.hasAudio {
		streams = append(streams, StreamInfo{Index: len(streams), Kind: RTPCodecTypeAudio, Codec: "pcm_s16le"})
	}
	return streams
}

// ReadFrame emits audio chunks and video frames interleaved by media
// time. Frames are produced as fast as they are read; pacing is the
// consumer's concern.
func (d *patternDemuxer) ReadFrame() (Frame, error) {
	if d.closed {
		return nil, fmt.Errorf("media: pattern demuxer is closed")
	}

	d.reads++
	if d.againInt > 0 && d.reads%int64(d.againInt) == 0 {
		return nil, ErrTryAgain
	}

	videoT, audioT := math.Inf(1), math.Inf(1)
	if d.hasVideo {
		videoT = float64(d.videoIndex) / float64(d.fps)
	}
	if d.hasAudio {
		audioT = float64(d.audioPos) / float64(d.rate)
	}

	next := math.Min(videoT, audioT)
	if d.duration > 0 && next >= d.duration {
		return nil, io.EOF
	}

	if videoT <= audioT {
		return d.nextVideoFrame(), nil
	}
	return d.nextAudioFrame(), nil
}

func (d *patternDemuxer) nextVideoFrame() *VideoFrame {
	i := d.videoIndex
	d.videoIndex++

	ySize := d.width * d.height
	uvW, uvH := d.width/2, d.height/2
	y := make([]byte, ySize)
	u := make([]byte, uvW*uvH)
	v := make([]byte, uvW*uvH)
	// Frame identity is encoded in the luma plane for tests and debugging.
	fill := byte(i)
	for p := range y {
		y[p] = fill
	}
	for p := range u {
		u[p] = 128
		v[p] = 128
	}

	pts := d.startPTS + int64(math.Round(float64(i)*1000/float64(d.fps)))
	if d.noPTSInt > 0 && i > 0 && i%int64(d.noPTSInt) == 0 {
		pts = NoPTS
	}

	return &VideoFrame{
		Data:     [][]byte{y, u, v},
		Stride:   []int{d.width, uvW, uvW},
		Width:    d.width,
		Height:   d.height,
		Format:   PixelFormatI420,
		PTS:      pts,
		TimeBase: Rational{1, 1000},
	}
}

func (d *patternDemuxer) nextAudioFrame() *AudioFrame {
	start := d.audioPos
	d.audioPos += int64(d.chunk)

	data := make([]byte, d.chunk*d.channels*2)
	for i := 0; i < d.chunk; i++ {
		t := float64(start+int64(i)) / float64(d.rate)
		s := int16(0.5 * math.MaxInt16 * math.Sin(2*math.Pi*d.frequency*t))
		for c := 0; c < d.channels; c++ {
			off := (i*d.channels + c) * 2
			data[off] = byte(s)
			data[off+1] = byte(s >> 8)
		}
	}

	return &AudioFrame{
		Data:        data,
		Format:      AudioFormatS16,
		Channels:    d.channels,
		SampleRate:  d.rate,
		SampleCount: d.chunk,
		PTS:         start,
		TimeBase:    Rational{1, d.rate},
	}
}

func (d *patternDemuxer) Close() error {
	d.closed = true
	return nil
}

func optInt(options map[string]string, key string, def int) int {
	if v, ok := options[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func optFloat(options map[string]string, key string, def float64) float64 {
	if v, ok := options[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
