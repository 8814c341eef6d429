package media

import (
	"encoding/binary"
	"errors"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newMockRecorder(c WriteContainer) *Recorder {
	return &Recorder{
		log:       slog.With("component", "recorder", "output", "mock"),
		container: c,
		streams:   make(map[Track]*recorderStream),
	}
}

func TestCodecForTrack(t *testing.T) {
	for _, tt := range []struct {
		kind   RTPCodecType
		format string
		want   string
	}{
		{RTPCodecTypeAudio, "wav", "pcm_s16le"},
		{RTPCodecTypeAudio, "alsa", "pcm_s16le"},
		{RTPCodecTypeAudio, "mp3", "mp3"},
		{RTPCodecTypeAudio, "mp4", "aac"},
		{RTPCodecTypeVideo, "image2", "png"},
		{RTPCodecTypeVideo, "mp4", "h264"},
		{RTPCodecTypeUnknown, "mp4", ""},
	} {
		if got := codecForTrack(tt.kind, tt.format); got != tt.want {
			t.Errorf("codecForTrack(%v, %q) = %q, want %q", tt.kind, tt.format, got, tt.want)
		}
	}
}

func TestGuessWriteFormat(t *testing.T) {
	for _, tt := range []struct {
		locator string
		want    string
	}{
		{"out.wav", "wav"},
		{"frame-%03d.png", "image2"},
		{"shot.JPG", "image2"},
		{"clip.mp4", "mp4"},
		{"noext", ""},
	} {
		if got := guessWriteFormat(tt.locator); got != tt.want {
			t.Errorf("guessWriteFormat(%q) = %q, want %q", tt.locator, got, tt.want)
		}
	}
}

func TestRecorderMuxesTracksSerialized(t *testing.T) {
	audio := newFeedTrack(RTPCodecTypeAudio)
	video := newFeedTrack(RTPCodecTypeVideo)
	container := &mockContainer{format: "mp4"}
	r := newMockRecorder(container)

	if err := r.AddTrack(audio); err != nil {
		t.Fatal(err)
	}
	if err := r.AddTrack(video); err != nil {
		t.Fatal(err)
	}
	// Adding the same track twice is a no-op.
	if err := r.AddTrack(audio); err != nil {
		t.Fatal(err)
	}
	if container.streams != 2 {
		t.Fatalf("%d container streams, want 2", container.streams)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	const frames = 25
	for i := 0; i < frames; i++ {
		audio.push(audioTestFrame(int64(i) * 960))
		video.push(videoTestFrame(i, int64(i)*33))
	}
	audio.end()
	video.end()

	if !waitUntil(func() bool { return container.packetCount() == 2*frames }) {
		t.Fatalf("muxed %d packets, want %d", container.packetCount(), 2*frames)
	}
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}

	if container.overlap.Load() {
		t.Fatal("concurrent WritePacket calls reached the container")
	}
	if !container.closed {
		t.Fatal("container not closed on Stop")
	}

	// Stop flushed both encoders and muxed the flush packets.
	var aac, h264, flush int
	for _, pkt := range container.packets {
		switch string(pkt.Data) {
		case "aac":
			aac++
		case "h264":
			h264++
		case "flush":
			flush++
		}
	}
	if aac != frames || h264 != frames || flush != 2 {
		t.Fatalf("got %d aac, %d h264, %d flush packets", aac, h264, flush)
	}

	// Stop is idempotent.
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := r.AddTrack(newFeedTrack(RTPCodecTypeAudio)); err == nil {
		t.Fatal("AddTrack after Stop must fail")
	}
}

func TestRecorderWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	r, err := NewRecorder(path, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	track := newFeedTrack(RTPCodecTypeAudio)
	if err := r.AddTrack(track); err != nil {
		t.Fatal(err)
	}
	// WAV takes a single audio stream.
	if err := r.AddTrack(newFeedTrack(RTPCodecTypeAudio)); err == nil {
		t.Fatal("second stream must be rejected")
	}
	if err := r.AddTrack(newFeedTrack(RTPCodecTypeVideo)); err == nil {
		t.Fatal("video must be rejected")
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	const frames = 3
	frameBytes := audioSamplesPerFrame * audioChannels * 2
	for i := 0; i < frames; i++ {
		track.push(audioTestFrame(int64(i) * audioSamplesPerFrame))
	}
	track.end()

	wantData := frames * frameBytes
	if !waitUntil(func() bool {
		fi, err := os.Stat(path)
		return err == nil && fi.Size() >= int64(wavHeaderSize+wantData)
	}) {
		t.Fatal("sample data never reached the file")
	}
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != wavHeaderSize+wantData {
		t.Fatalf("file is %d bytes, want %d", len(raw), wavHeaderSize+wantData)
	}
	if string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" || string(raw[36:40]) != "data" {
		t.Fatal("malformed RIFF header")
	}
	if got := binary.LittleEndian.Uint32(raw[4:]); got != uint32(36+wantData) {
		t.Fatalf("riff size %d, want %d", got, 36+wantData)
	}
	if got := binary.LittleEndian.Uint16(raw[22:]); got != audioChannels {
		t.Fatalf("channels %d, want %d", got, audioChannels)
	}
	if got := binary.LittleEndian.Uint32(raw[24:]); got != audioSampleRate {
		t.Fatalf("sample rate %d, want %d", got, audioSampleRate)
	}
	if got := binary.LittleEndian.Uint32(raw[40:]); got != uint32(wantData) {
		t.Fatalf("data size %d, want %d", got, wantData)
	}
}

func TestRecorderImageSequence(t *testing.T) {
	dir := t.TempDir()
	pattern := filepath.Join(dir, "frame-%02d.png")
	r, err := NewRecorder(pattern, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	track := newFeedTrack(RTPCodecTypeVideo)
	if err := r.AddTrack(track); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		track.push(videoTestFrame(i, int64(i)*33))
	}
	track.end()

	last := filepath.Join(dir, "frame-03.png")
	if !waitUntil(func() bool {
		_, err := os.Stat(last)
		return err == nil
	}) {
		t.Fatal("image files never appeared")
	}
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(dir, "frame-01.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Fatalf("decoded image is %v, want 16x16", b)
	}
}

func TestRecorderImageSequenceNeedsPattern(t *testing.T) {
	if _, err := NewRecorder("frame.png", "", nil); err == nil {
		t.Fatal("locator without an index pattern must be rejected")
	}
}

func TestOpenWriteContainerUnknownFormat(t *testing.T) {
	if _, err := OpenWriteContainer("out.zzz", "", nil); !errors.Is(err, ErrFormatNotSupported) {
		t.Fatalf("got %v, want ErrFormatNotSupported", err)
	}
	if _, err := OpenWriteContainer("noext", "", nil); !errors.Is(err, ErrFormatNotSupported) {
		t.Fatalf("got %v, want ErrFormatNotSupported", err)
	}
}
