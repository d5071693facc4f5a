package display

import (
	"bytes"
	"errors"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"time"
)

// MinFrameDelay is the shortest delay written between frames.
const MinFrameDelay = 50 * time.Millisecond

// Encoder turns captured frames into an animation file, showing each frame
// for delay.
type Encoder interface {
	Encode(frames []Grid, delay time.Duration) ([]byte, error)
}

// GIFEncoder is the default Encoder.
type GIFEncoder struct {
	Scale int
}

func (e GIFEncoder) Encode(frames []Grid, delay time.Duration) ([]byte, error) {
	if len(frames) == 0 {
		return nil, errors.New("no frames to encode")
	}
	scale := e.Scale
	if scale < 1 {
		scale = 10
	}
	// GIF delays are in hundredths of a second.
	centis := int(max(delay, MinFrameDelay) / (10 * time.Millisecond))

	anim := &gif.GIF{}
	for i := range frames {
		src := frames[i].Image(scale)
		dst := image.NewPaletted(src.Bounds(), palette.Plan9)
		draw.Draw(dst, dst.Bounds(), src, image.Point{}, draw.Src)
		anim.Image = append(anim.Image, dst)
		anim.Delay = append(anim.Delay, centis)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
