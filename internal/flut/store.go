// Package flut owns the shared, process-wide state of a flurry server:
// the canvas table, the live-connection and pixel-write counters, and the
// subscriber sets that the broadcaster and stats aggregator fan out to.
// It is the Go analogue of the Manager type a websocket-hub server keeps
// at its root, generalized from a single hub to a table of named
// canvases plus two kinds of subscriber.
package flut

import (
	"errors"
	"sync/atomic"

	"github.com/itepastra/flurry/internal/canvas"
)

// ErrNoSuchCanvas is returned when a command addresses a canvas id that
// was not present in the server's configuration at startup.
var ErrNoSuchCanvas = errors.New("flut: no such canvas")

// Store is the immutable-shape, mutable-content root of a flurry server:
// an immutable mapping from canvas id to Canvas, plus the two
// process-wide counters and the subscriber sets fed by the broadcaster
// and the stats aggregator. The map itself never changes after
// construction; only what it maps *to* mutates, and only through the
// concurrency-safe primitives (Canvas, SubscriberSet, atomics) it holds.
type Store struct {
	canvases map[uint8]*canvas.Canvas
	order    []uint8

	liveConns   atomic.Int64
	pixelWrites atomic.Uint64

	imageSubs map[uint8]*SubscriberSet
	statsSubs *SubscriberSet

	onWrite func(canvasID uint8, x, y uint16, r, g, b, a uint8)
}

// CanvasConfig describes one canvas at startup.
type CanvasConfig struct {
	ID     uint8
	Width  uint16
	Height uint16
}

// NewStore builds a Store from a fixed list of canvas configurations.
// The canvas ids and dimensions cannot change after this call returns.
func NewStore(configs []CanvasConfig) *Store {
	s := &Store{
		canvases:  make(map[uint8]*canvas.Canvas, len(configs)),
		imageSubs: make(map[uint8]*SubscriberSet, len(configs)),
		statsSubs: NewSubscriberSet(),
	}
	for _, cfg := range configs {
		s.canvases[cfg.ID] = canvas.New(cfg.Width, cfg.Height)
		s.imageSubs[cfg.ID] = NewSubscriberSet()
		s.order = append(s.order, cfg.ID)
	}
	return s
}

// Canvas returns the canvas with the given id, or ErrNoSuchCanvas.
func (s *Store) Canvas(id uint8) (*canvas.Canvas, error) {
	c, ok := s.canvases[id]
	if !ok {
		return nil, ErrNoSuchCanvas
	}
	return c, nil
}

// CanvasIDs returns every configured canvas id, in configuration order.
func (s *Store) CanvasIDs() []uint8 {
	out := make([]uint8, len(s.order))
	copy(out, s.order)
	return out
}

// ImageSubscribers returns the subscriber set for a canvas's image
// stream, or ErrNoSuchCanvas.
func (s *Store) ImageSubscribers(id uint8) (*SubscriberSet, error) {
	set, ok := s.imageSubs[id]
	if !ok {
		return nil, ErrNoSuchCanvas
	}
	return set, nil
}

// StatsSubscribers returns the single, canvas-independent stats
// subscriber set.
func (s *Store) StatsSubscribers() *SubscriberSet {
	return s.statsSubs
}

// ConnectionOpened increments the live-connection gauge. Call on accept.
func (s *Store) ConnectionOpened() {
	s.liveConns.Add(1)
}

// ConnectionClosed decrements the live-connection gauge. Call exactly
// once per ConnectionOpened, on connection exit.
func (s *Store) ConnectionClosed() {
	s.liveConns.Add(-1)
}

// LiveConnections returns the current live-connection gauge.
func (s *Store) LiveConnections() int64 {
	return s.liveConns.Load()
}

// SetClusterPublisher installs a callback invoked from PixelWritten with
// the full pixel that was just written, so a cluster fan-out layer can
// announce it to sibling processes. Only the pixel-write path calls it;
// PixelWrittenRemote (writes arriving *from* the cluster) never does, to
// avoid an event echoing back out to the process that just consumed it.
func (s *Store) SetClusterPublisher(fn func(canvasID uint8, x, y uint16, r, g, b, a uint8)) {
	s.onWrite = fn
}

// PixelWritten increments the cumulative pixel-write counter and, if a
// cluster publisher is installed, announces the write to it. Call once
// per successful Set*/Blend* command.
func (s *Store) PixelWritten(canvasID uint8, x, y uint16, r, g, b, a uint8) {
	s.pixelWrites.Add(1)
	if s.onWrite != nil {
		s.onWrite(canvasID, x, y, r, g, b, a)
	}
}

// PixelWrites returns the cumulative pixel-write counter.
func (s *Store) PixelWrites() uint64 {
	return s.pixelWrites.Load()
}

// PixelWrittenRemote folds a pixel write reported by a sibling process
// in the cluster into the local counter, so a stats snapshot reflects
// the whole cluster's throughput rather than just this process's own
// connections.
func (s *Store) PixelWrittenRemote() {
	s.pixelWrites.Add(1)
}
