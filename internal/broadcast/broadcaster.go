// Package broadcast periodically encodes each canvas to a PNG frame and
// fans it out to the WebSocket subscribers of that canvas, without ever
// blocking on a slow spectator.
package broadcast

import (
	"bytes"
	"image"
	"image/png"
	"log"
	"time"

	"github.com/itepastra/flurry/internal/canvas"
	"github.com/itepastra/flurry/internal/flut"
	"github.com/itepastra/flurry/internal/pixel"
	"golang.org/x/image/draw"
)

var logger = log.New(log.Writer(), "broadcast: ", log.LstdFlags)

// Broadcaster runs one canvas's periodic snapshot-encode-fanout tick.
// One Broadcaster per canvas id runs for the lifetime of the server.
type Broadcaster struct {
	canvasID uint8
	canvas   *canvas.Canvas
	subs     *flut.SubscriberSet
	interval time.Duration

	snapshot []pixel.Word
	img      *image.RGBA
}

// New builds a Broadcaster for one canvas, ticking at the given cadence.
func New(canvasID uint8, c *canvas.Canvas, subs *flut.SubscriberSet, interval time.Duration) *Broadcaster {
	w, h := c.Dimensions()
	return &Broadcaster{
		canvasID: canvasID,
		canvas:   c,
		subs:     subs,
		interval: interval,
		snapshot: make([]pixel.Word, int(w)*int(h)),
		img:      image.NewRGBA(image.Rect(0, 0, int(w), int(h))),
	}
}

// Run ticks until stop is closed. Encoding is CPU-heavy and runs on
// whatever goroutine Run was launched on, which callers should keep off
// the connection-handling worker pool by running each Broadcaster in its own goroutine.
func (b *Broadcaster) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if b.subs.Len() == 0 {
				continue
			}
			b.tick()
		}
	}
}

// tick snapshots the canvas once, then encodes a native-resolution frame
// and, on demand, one downscaled frame per distinct (maxW, maxH) a
// spectator asked for, so N subscribers requesting the same small size
// only pay one resize+encode rather than N.
func (b *Broadcaster) tick() {
	b.canvas.Snapshot(b.snapshot)
	fillImage(b.img, b.snapshot)

	full, err := EncodePNG(b.img)
	if err != nil {
		logger.Printf("canvas %d: encode frame: %v", b.canvasID, err)
		return
	}

	type dims struct{ w, h int }
	scaled := make(map[dims][]byte)

	for _, sub := range b.subs.Snapshot() {
		if sub.MaxW <= 0 && sub.MaxH <= 0 {
			sub.Push(full)
			continue
		}
		key := dims{sub.MaxW, sub.MaxH}
		frame, ok := scaled[key]
		if !ok {
			img := Downscale(b.img, sub.MaxW, sub.MaxH)
			frame, err = EncodePNG(img)
			if err != nil {
				logger.Printf("canvas %d: encode downscaled frame: %v", b.canvasID, err)
				continue
			}
			scaled[key] = frame
		}
		sub.Push(frame)
	}
}

func fillImage(img *image.RGBA, snapshot []pixel.Word) {
	for i, w := range snapshot {
		r, g, b := w.Unpack()
		img.Pix[i*4+0] = r
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = b
		img.Pix[i*4+3] = 0xff
	}
}

// Downscale bilinearly scales src into a new image bounded by (maxW,
// maxH), preserving aspect ratio and never upscaling. A bound of zero or
// less leaves that dimension at src's native size. It is used for
// spectators that ask for a smaller stream than the canvas's native
// resolution.
func Downscale(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	if maxW <= 0 {
		maxW = b.Dx()
	}
	if maxH <= 0 {
		maxH = b.Dy()
	}
	if b.Dx() <= maxW && b.Dy() <= maxH {
		return src
	}
	scale := float64(maxW) / float64(b.Dx())
	if alt := float64(maxH) / float64(b.Dy()); alt < scale {
		scale = alt
	}
	w := int(float64(b.Dx()) * scale)
	h := int(float64(b.Dy()) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// EncodePNG encodes img as a PNG, the browser-renderable codec used for
// every image-stream frame.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToImage converts a raw pixel snapshot into a standard library image
// for downstream resizing/encoding.
func ToImage(width, height uint16, snapshot []pixel.Word) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	fillImage(img, snapshot)
	return img
}
