// Package stats periodically samples the server-wide counters kept in
// internal/flut.Store, folds in any last-known cluster contributions,
// and fans a JSON snapshot out to the stats WebSocket subscribers.
package stats

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/itepastra/flurry/internal/flut"
)

var logger = log.New(log.Writer(), "stats: ", log.LstdFlags)

// Snapshot is the wire shape of one stats broadcast frame.
type Snapshot struct {
	Connections int64  `json:"c"`
	PixelWrites uint64 `json:"p"`
}

// Aggregator runs the periodic sample-and-broadcast tick against a
// Store's counters. When cluster fan-out is enabled, RecordSiblingConnections
// is fed the last-known live-connection count for each sibling process,
// and the snapshot's Connections field becomes the sum of the local
// gauge and every sibling's last-known value.
type Aggregator struct {
	store    *flut.Store
	interval time.Duration

	mu          sync.Mutex
	siblingConn map[uuid.UUID]int64
}

// New builds an Aggregator ticking at the given cadence.
func New(store *flut.Store, interval time.Duration) *Aggregator {
	return &Aggregator{
		store:       store,
		interval:    interval,
		siblingConn: make(map[uuid.UUID]int64),
	}
}

// RecordSiblingConnections folds a sibling process's last-known
// live-connection count into future snapshots, replacing whatever value
// that origin last reported. It never touches the local store gauge.
func (a *Aggregator) RecordSiblingConnections(origin uuid.UUID, count int64) {
	a.mu.Lock()
	a.siblingConn[origin] = count
	a.mu.Unlock()
}

func (a *Aggregator) clusterConnections() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var sum int64
	for _, count := range a.siblingConn {
		sum += count
	}
	return sum
}

// Run ticks until stop is closed, broadcasting one JSON snapshot per
// tick to every subscriber of the store's stats subscriber set.
func (a *Aggregator) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	subs := a.store.StatsSubscribers()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if subs.Len() == 0 {
				continue
			}
			a.tick(subs)
		}
	}
}

// snapshot builds the current stats snapshot: the local gauge/counter
// plus every sibling's last-known contribution.
func (a *Aggregator) snapshot() Snapshot {
	return Snapshot{
		Connections: a.store.LiveConnections() + a.clusterConnections(),
		PixelWrites: a.store.PixelWrites(),
	}
}

func (a *Aggregator) tick(subs *flut.SubscriberSet) {
	msg, err := json.Marshal(a.snapshot())
	if err != nil {
		logger.Printf("marshal snapshot: %v", err)
		return
	}
	subs.Broadcast(msg)
}

// MessageType is the WebSocket frame type stats snapshots are sent as.
const MessageType = websocket.TextMessage
