// Package canvas implements the fixed-size shared pixel grid at the heart
// of the pixelflut server: concurrent readers and writers, no torn pixels,
// no locking on the hot path.
package canvas

import (
	"errors"
	"sync/atomic"

	"github.com/itepastra/flurry/internal/pixel"
)

// ErrOutOfBounds is returned by Get/Set/Blend when the coordinate falls
// outside the canvas's [0,W)x[0,H) rectangle.
var ErrOutOfBounds = errors.New("canvas: coordinate out of bounds")

// ClearWord is the pixel value every cell starts at: opaque black.
var ClearWord = pixel.Pack(0, 0, 0)

// Canvas is a fixed-size rectangular grid of atomically addressable
// pixels. Width and height are immutable after construction. The zero
// value is not usable; build one with New.
type Canvas struct {
	width, height uint16
	cells         []atomic.Uint32
}

// New allocates a Canvas of the given dimensions, cleared to ClearWord.
// Both width and height must be in [1, 65535]; New panics otherwise since
// a canvas with an invalid size is a construction-time programming error,
// not a runtime condition the caller can recover from.
func New(width, height uint16) *Canvas {
	if width == 0 || height == 0 {
		panic("canvas: width and height must both be at least 1")
	}
	c := &Canvas{
		width:  width,
		height: height,
		cells:  make([]atomic.Uint32, int(width)*int(height)),
	}
	for i := range c.cells {
		c.cells[i].Store(uint32(ClearWord))
	}
	return c
}

// Dimensions returns the canvas's width and height. Pure, infallible.
func (c *Canvas) Dimensions() (width, height uint16) {
	return c.width, c.height
}

func (c *Canvas) index(x, y uint16) (int, bool) {
	if x >= c.width || y >= c.height {
		return 0, false
	}
	return int(y)*int(c.width) + int(x), true
}

// Get returns the current channel triple at (x, y).
func (c *Canvas) Get(x, y uint16) (r, g, b byte, err error) {
	idx, ok := c.index(x, y)
	if !ok {
		return 0, 0, 0, ErrOutOfBounds
	}
	word := pixel.Word(c.cells[idx].Load())
	r, g, b = word.Unpack()
	return r, g, b, nil
}

// Set atomically overwrites the pixel at (x, y). There is no
// read-modify-write: the new word replaces the old one in a single store.
func (c *Canvas) Set(x, y uint16, r, g, b byte) error {
	idx, ok := c.index(x, y)
	if !ok {
		return ErrOutOfBounds
	}
	c.cells[idx].Store(uint32(pixel.Pack(r, g, b)))
	return nil
}

// Blend performs source-over compositing of (r,g,b,a) atop the pixel at
// (x, y). The update is atomic at the pixel word: Blend loads the word,
// computes the blended value and stores it with CompareAndSwap, retrying
// from a fresh load until the swap succeeds. A write that lands between
// the load and the swap therefore makes Blend recompute against the new
// value instead of overwriting it, so no concurrent write is lost. The
// retry loop has no iteration limit.
func (c *Canvas) Blend(x, y uint16, r, g, b, a byte) error {
	idx, ok := c.index(x, y)
	if !ok {
		return ErrOutOfBounds
	}
	cell := &c.cells[idx]
	for {
		old := pixel.Word(cell.Load())
		next := old.Blend(r, g, b, a)
		if uint32(next) == uint32(old) {
			return nil
		}
		if cell.CompareAndSwap(uint32(old), uint32(next)) {
			return nil
		}
	}
}

// Snapshot copies every pixel word into dst, which must have length
// width*height (see Dimensions), in row-major order. This is a non-atomic bulk read:
// tearing across pixels is possible if writers are concurrently active,
// but is corrected by the next snapshot.
func (c *Canvas) Snapshot(dst []pixel.Word) {
	for i := range c.cells {
		dst[i] = pixel.Word(c.cells[i].Load())
	}
}
