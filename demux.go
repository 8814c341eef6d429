package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Common errors surfaced by demuxers.
var (
	// ErrTryAgain signals a transient would-block condition; the caller
	// should retry after a short delay.
	ErrTryAgain = errors.New("media: resource temporarily unavailable")

	// ErrFormatNotSupported is returned when no demuxer or container is
	// registered for a format.
	ErrFormatNotSupported = errors.New("media: format not supported")
)

// StreamInfo describes one demuxed substream inside a container.
type StreamInfo struct {
	Index int          // Stream index inside the container
	Kind  RTPCodecType // Audio or video
	Codec string       // Codec name, informational
}

// Demuxer is the opaque demux+decode capability backing a Player. It
// reads a container or capture device and yields decoded frames.
//
// ReadFrame returns the next decoded frame from any substream. It returns
// ErrTryAgain for transient would-block conditions, io.EOF at clean end of
// stream, and any other error for unrecoverable failures. Implementations
// are driven from a single dedicated goroutine and need not be safe for
// concurrent use.
type Demuxer interface {
	// FormatName returns the container format name. Multi-name formats
	// use a comma-separated list, e.g. "mov,mp4,m4a".
	FormatName() string

	// Streams lists the substreams discovered in the container.
	Streams() []StreamInfo

	// ReadFrame returns the next decoded frame.
	ReadFrame() (Frame, error)

	// Close releases the container handle. The owning Player joins the
	// decode goroutine before calling Close.
	Close() error
}

// DemuxerFactory opens a demuxer for a media locator. Recognized options
// are forwarded opaquely to the underlying decoder or device.
type DemuxerFactory func(locator string, options map[string]string) (Demuxer, error)

// demuxRegistry holds registered demuxer factories by format name.
type demuxRegistry struct {
	mu        sync.RWMutex
	factories map[string]DemuxerFactory
}

var globalDemuxRegistry = &demuxRegistry{
	factories: make(map[string]DemuxerFactory),
}

// RegisterDemuxerFormat registers a demuxer factory for a format name.
func RegisterDemuxerFormat(format string, factory DemuxerFactory) {
	globalDemuxRegistry.mu.Lock()
	defer globalDemuxRegistry.mu.Unlock()
	globalDemuxRegistry.factories[format] = factory
}

// OpenDemuxer opens a demuxer for the locator. When format is empty it is
// guessed from the locator's file extension.
func OpenDemuxer(locator, format string, options map[string]string) (Demuxer, error) {
	if format == "" {
		format = guessFormat(locator)
	}
	if format == "" {
		return nil, fmt.Errorf("%w: cannot guess format for %q", ErrFormatNotSupported, locator)
	}

	globalDemuxRegistry.mu.RLock()
	factory, ok := globalDemuxRegistry.factories[format]
	globalDemuxRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFormatNotSupported, format)
	}
	return factory(locator, options)
}

// guessFormat maps a locator extension to a format name.
func guessFormat(locator string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(locator), "."))
}

// realTimeFormats lists container formats that are inherently real-time
// (capture devices and live feeds). Sources with these formats are not
// throttled to wall-clock playback.
var realTimeFormats = map[string]struct{}{
	"alsa":           {},
	"android_camera": {},
	"avfoundation":   {},
	"bktr":           {},
	"decklink":       {},
	"dshow":          {},
	"fbdev":          {},
	"gdigrab":        {},
	"iec61883":       {},
	"jack":           {},
	"kmsgrab":        {},
	"openal":         {},
	"oss":            {},
	"pulse":          {},
	"sndio":          {},
	"rtsp":           {},
	"v4l2":           {},
	"vfwcap":         {},
	"x11grab":        {},
}

// IsRealTimeFormat reports whether any name in the comma-separated format
// list identifies an inherently real-time source.
func IsRealTimeFormat(format string) bool {
	for _, name := range strings.Split(format, ",") {
		if _, ok := realTimeFormats[name]; ok {
			return true
		}
	}
	return false
}
