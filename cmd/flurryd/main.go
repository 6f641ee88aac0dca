// Command flurryd is a flurry pixel-canvas server: it accepts pixelflut
// TCP connections, runs one image-stream broadcaster per canvas, a
// process-wide stats aggregator, and an HTTP/WebSocket front door.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itepastra/flurry/internal/broadcast"
	"github.com/itepastra/flurry/internal/cluster"
	"github.com/itepastra/flurry/internal/config"
	"github.com/itepastra/flurry/internal/connio"
	"github.com/itepastra/flurry/internal/flut"
	"github.com/itepastra/flurry/internal/httpapi"
	"github.com/itepastra/flurry/internal/stats"
)

var logger = log.New(log.Writer(), "flurryd: ", log.LstdFlags)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (default: ./flurry.json if present, else one 800x600 canvas)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	store := flut.NewStore(cfg.CanvasConfigs())
	agg := stats.New(store, cfg.StatsInterval())

	stop := make(chan struct{})

	if cfg.ClusterEnabled() {
		cl, err := cluster.Dial(context.Background(), cfg.RedisAddr)
		if err != nil {
			logger.Fatalf("dial cluster redis: %v", err)
		}
		defer cl.Close()

		store.SetClusterPublisher(func(canvasID uint8, x, y uint16, r, g, b, a uint8) {
			cl.PublishPixel(cluster.PixelEvent{CanvasID: canvasID, X: x, Y: y, R: r, G: g, B: b, A: a})
		})
		go func() {
			for range cl.PixelEvents() {
				store.PixelWrittenRemote()
			}
		}()
		go func() {
			for evt := range cl.ConnectionEvents() {
				agg.RecordSiblingConnections(evt.Origin, evt.Count)
			}
		}()
		go connectionCountHeartbeat(stop, cfg.StatsInterval(), store, cl)
		logger.Printf("cluster fan-out enabled via %s", cfg.RedisAddr)
	}

	for _, id := range store.CanvasIDs() {
		cv, err := store.Canvas(id)
		if err != nil {
			logger.Fatalf("canvas %d vanished at startup: %v", id, err)
		}
		subs, err := store.ImageSubscribers(id)
		if err != nil {
			logger.Fatalf("canvas %d has no subscriber set: %v", id, err)
		}
		b := broadcast.New(id, cv, subs, cfg.BroadcastInterval())
		go b.Run(stop)
	}

	go agg.Run(stop)

	listener, err := net.Listen("tcp", cfg.TCPAddr)
	if err != nil {
		logger.Fatalf("listen on %s: %v", cfg.TCPAddr, err)
	}
	go acceptLoop(listener, store)
	logger.Printf("pixelflut listening on %s", cfg.TCPAddr)

	router := httpapi.NewRouter(store)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	waitForShutdown()
	close(stop)
	listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
}

// acceptLoop accepts TCP connections until the listener is closed,
// handing each off to connio.Handle on its own goroutine so one slow
// pixelflut client never delays another's accept.
func acceptLoop(listener net.Listener, store *flut.Store) {
	for {
		nc, err := listener.Accept()
		if err != nil {
			return
		}
		go connio.Handle(nc, store)
	}
}

// waitForShutdown blocks until SIGINT or SIGTERM, the same graceful-exit
// trigger a long-running server process is expected to honor.
func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

// connectionCountHeartbeat periodically announces this process's live
// connection gauge to the cluster, so siblings can fold it into their
// own stats snapshot's Connections field.
func connectionCountHeartbeat(stop <-chan struct{}, interval time.Duration, store *flut.Store, cl *cluster.Cluster) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cl.PublishConnectionCount(store.LiveConnections())
		}
	}
}
