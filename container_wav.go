package media

import (
	"encoding/binary"
	"fmt"
	"os"
)

func init() {
	RegisterWriteContainerFormat("wav", newWAVContainer)
}

// wavContainer writes a single pcm_s16le stream into a RIFF/WAVE file.
// Sizes in the header are patched on Close.
type wavContainer struct {
	f          *os.File
	sampleRate int
	channels   int
	dataLen    uint32
	haveStream bool
}

const wavHeaderSize = 44

func newWAVContainer(locator string, options map[string]string) (WriteContainer, error) {
	f, err := os.Create(locator)
	if err != nil {
		return nil, err
	}
	c := &wavContainer{
		f: f,
		// Tracks deliver the normalized audio target format.
		sampleRate: audioSampleRate,
		channels:   audioChannels,
	}
	if err := c.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

func (c *wavContainer) FormatName() string { return "wav" }

func (c *wavContainer) AddStream(codec string, kind RTPCodecType) (Encoder, error) {
	if kind != RTPCodecTypeAudio {
		return nil, fmt.Errorf("media: wav container only accepts audio, got %v", kind)
	}
	if codec != "pcm_s16le" {
		return nil, fmt.Errorf("media: wav container requires pcm_s16le, got %q", codec)
	}
	if c.haveStream {
		return nil, fmt.Errorf("media: wav container supports a single stream")
	}
	c.haveStream = true
	return &pcmEncoder{}, nil
}

func (c *wavContainer) WritePacket(pkt *Packet) error {
	n, err := c.f.Write(pkt.Data)
	c.dataLen += uint32(n)
	return err
}

func (c *wavContainer) Close() error {
	if err := c.patchSizes(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

func (c *wavContainer) writeHeader() error {
	var hdr [wavHeaderSize]byte
	byteRate := uint32(c.sampleRate * c.channels * 2)
	blockAlign := uint16(c.channels * 2)

	copy(hdr[0:], "RIFF")
	// Sizes at offsets 4 and 40 are patched on Close.
	copy(hdr[8:], "WAVE")
	copy(hdr[12:], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(hdr[20:], 1)  // PCM
	binary.LittleEndian.PutUint16(hdr[22:], uint16(c.channels))
	binary.LittleEndian.PutUint32(hdr[24:], uint32(c.sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:], 16) // bits per sample
	copy(hdr[36:], "data")

	_, err := c.f.Write(hdr[:])
	return err
}

func (c *wavContainer) patchSizes() error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], 36+c.dataLen)
	if _, err := c.f.WriteAt(buf[:], 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[:], c.dataLen)
	_, err := c.f.WriteAt(buf[:], 40)
	return err
}

// pcmEncoder passes S16 samples through unchanged. It buffers nothing, so
// flushing produces no packets.
type pcmEncoder struct{}

func (e *pcmEncoder) Encode(f Frame) ([]*Packet, error) {
	if f == nil {
		return nil, nil
	}
	af, ok := f.(*AudioFrame)
	if !ok {
		return nil, fmt.Errorf("media: pcm encoder requires audio frames")
	}
	if af.Format != AudioFormatS16 {
		return nil, fmt.Errorf("media: pcm encoder requires S16 samples, got %v", af.Format)
	}
	return []*Packet{{
		Data:     af.Data,
		PTS:      af.PTS,
		Duration: int64(af.SampleCount),
		TimeBase: af.TimeBase,
	}}, nil
}
