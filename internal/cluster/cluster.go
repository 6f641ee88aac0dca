// Package cluster provides optional Redis pub/sub fan-out between
// sibling flurry processes that each own their own in-memory canvases.
// It never replicates canvas pixel data or provides persistence: only
// live pixel-write and connection-count events, so a stats snapshot can
// reflect a whole cluster's throughput without any process treating
// Redis as the source of truth for pixel state.
package cluster

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var logger = log.New(log.Writer(), "cluster: ", log.LstdFlags)

// pixelChannel and connChannel are the Redis pub/sub channels every
// flurry process in a cluster publishes to and subscribes from.
const (
	pixelChannel = "flurry:pixel_write"
	connChannel  = "flurry:conn_count"
)

// PixelEvent is one pixel write, published so every sibling process can
// fold it into its own local stats counters. Canvas contents themselves
// stay local to the process that received the write; this event carries
// no image data larger than a single pixel and is never replayed to
// reconstruct canvas state after a restart.
type PixelEvent struct {
	Origin   uuid.UUID `json:"origin"`
	CanvasID uint8     `json:"canvas_id"`
	X        uint16    `json:"x"`
	Y        uint16    `json:"y"`
	R        uint8     `json:"r"`
	G        uint8     `json:"g"`
	B        uint8     `json:"b"`
	A        uint8     `json:"a"`
}

// ConnectionEvent is one process's live-connection gauge, published
// periodically so every sibling can fold the last-known value per
// origin into its own stats snapshot.
type ConnectionEvent struct {
	Origin uuid.UUID `json:"origin"`
	Count  int64     `json:"count"`
}

// Cluster wraps a Redis client with the publish and subscribe halves of
// cross-process fan-out. Every event it publishes is tagged with the
// Cluster's own originID, so its own subscription to the same channel
// (Redis fans a publish out to every current subscriber, including the
// publisher) can be told apart from a sibling's event and dropped
// instead of double-counted.
type Cluster struct {
	rdb      *redis.Client
	pubsub   *redis.PubSub
	ctx      context.Context
	originID uuid.UUID

	pixelOut chan PixelEvent
	connOut  chan ConnectionEvent
}

// Dial connects to the Redis instance at addr and subscribes to the
// shared pixel-write and connection-count channels. The returned
// Cluster's PixelEvents and ConnectionEvents channels must both be
// drained by the caller for the lifetime of the process.
func Dial(ctx context.Context, addr string) (*Cluster, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	c := &Cluster{
		rdb:      rdb,
		pubsub:   rdb.Subscribe(ctx, pixelChannel, connChannel),
		ctx:      ctx,
		originID: uuid.New(),
		pixelOut: make(chan PixelEvent),
		connOut:  make(chan ConnectionEvent),
	}
	go c.dispatch()
	return c, nil
}

// dispatch is the single reader of the underlying subscription; it
// routes each message to the pixel or connection channel by the Redis
// channel it arrived on and drops anything this same Cluster published,
// since Redis echoes a publish back to the publisher's own
// subscription.
func (c *Cluster) dispatch() {
	defer close(c.pixelOut)
	defer close(c.connOut)
	for msg := range c.pubsub.Channel() {
		switch msg.Channel {
		case pixelChannel:
			var evt PixelEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				logger.Printf("unmarshal pixel event: %v", err)
				continue
			}
			if evt.Origin == c.originID {
				continue
			}
			c.pixelOut <- evt
		case connChannel:
			var evt ConnectionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				logger.Printf("unmarshal connection event: %v", err)
				continue
			}
			if evt.Origin == c.originID {
				continue
			}
			c.connOut <- evt
		}
	}
}

// PublishPixel announces a local pixel write to every other process in
// the cluster, tagged with this Cluster's origin. Failures are logged
// and swallowed: a missed cluster-stats event must never fail the local
// write that triggered it.
func (c *Cluster) PublishPixel(evt PixelEvent) {
	evt.Origin = c.originID
	body, err := json.Marshal(evt)
	if err != nil {
		logger.Printf("marshal pixel event: %v", err)
		return
	}
	if err := c.rdb.Publish(c.ctx, pixelChannel, body).Err(); err != nil {
		logger.Printf("publish pixel event: %v", err)
	}
}

// PublishConnectionCount announces this process's current live-connection
// gauge to every other process in the cluster, tagged with this
// Cluster's origin. Failures are logged and swallowed for the same
// reason as PublishPixel.
func (c *Cluster) PublishConnectionCount(count int64) {
	body, err := json.Marshal(ConnectionEvent{Origin: c.originID, Count: count})
	if err != nil {
		logger.Printf("marshal connection event: %v", err)
		return
	}
	if err := c.rdb.Publish(c.ctx, connChannel, body).Err(); err != nil {
		logger.Printf("publish connection event: %v", err)
	}
}

// PixelEvents returns a channel of pixel-write events received from
// other processes in the cluster. It is closed when the underlying
// subscription is closed.
func (c *Cluster) PixelEvents() <-chan PixelEvent {
	return c.pixelOut
}

// ConnectionEvents returns a channel of connection-count events received
// from other processes in the cluster. It is closed when the underlying
// subscription is closed.
func (c *Cluster) ConnectionEvents() <-chan ConnectionEvent {
	return c.connOut
}

// Close tears down the subscription and the underlying Redis client.
func (c *Cluster) Close() error {
	if err := c.pubsub.Close(); err != nil {
		return err
	}
	return c.rdb.Close()
}
