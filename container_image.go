package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
)

func init() {
	RegisterWriteContainerFormat("image2", newImageContainer)
}

// imageContainer writes each video frame as a standalone PNG file. The
// locator must be a printf-style pattern with one integer verb, e.g.
// "frame-%03d.png".
type imageContainer struct {
	pattern string
	index   int
}

func newImageContainer(locator string, options map[string]string) (WriteContainer, error) {
	if !strings.Contains(locator, "%") {
		return nil, fmt.Errorf("media: image sequence locator needs an index pattern, e.g. %q", "frame-%03d.png")
	}
	return &imageContainer{pattern: locator}, nil
}

func (c *imageContainer) FormatName() string { return "image2" }

func (c *imageContainer) AddStream(codec string, kind RTPCodecType) (Encoder, error) {
	if kind != RTPCodecTypeVideo {
		return nil, fmt.Errorf("media: image sequence only accepts video, got %v", kind)
	}
	if codec != "png" {
		return nil, fmt.Errorf("media: image sequence requires png, got %q", codec)
	}
	return &pngEncoder{}, nil
}

func (c *imageContainer) WritePacket(pkt *Packet) error {
	c.index++
	return os.WriteFile(fmt.Sprintf(c.pattern, c.index), pkt.Data, 0o644)
}

func (c *imageContainer) Close() error { return nil }

// pngEncoder encodes one video frame per packet. Stateless, so flushing
// produces no packets.
type pngEncoder struct{}

func (e *pngEncoder) Encode(f Frame) ([]*Packet, error) {
	if f == nil {
		return nil, nil
	}
	vf, ok := f.(*VideoFrame)
	if !ok {
		return nil, fmt.Errorf("media: png encoder requires video frames")
	}

	img, err := frameImage(vf)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return []*Packet{{
		Data:     buf.Bytes(),
		PTS:      vf.PTS,
		TimeBase: vf.TimeBase,
	}}, nil
}

// frameImage wraps or converts a decoded frame into an image.Image.
func frameImage(f *VideoFrame) (image.Image, error) {
	switch f.Format {
	case PixelFormatI420:
		return &image.YCbCr{
			Y:              f.Data[0],
			Cb:             f.Data[1],
			Cr:             f.Data[2],
			YStride:        f.Stride[0],
			CStride:        f.Stride[1],
			SubsampleRatio: image.YCbCrSubsampleRatio420,
			Rect:           image.Rect(0, 0, f.Width, f.Height),
		}, nil
	case PixelFormatRGB24:
		img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
		for y := 0; y < f.Height; y++ {
			row := f.Data[0][y*f.Stride[0]:]
			for x := 0; x < f.Width; x++ {
				img.SetNRGBA(x, y, color.NRGBA{R: row[x*3], G: row[x*3+1], B: row[x*3+2], A: 255})
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("media: png encoder does not support %v input", f.Format)
	}
}
