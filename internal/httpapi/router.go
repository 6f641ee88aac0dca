// Package httpapi is the HTTP/WebSocket front door of a flurry server:
// image and stats streaming, canvas discovery, and a debug raw-dump
// endpoint. One gorilla/mux router registers a handler method per
// route.
package httpapi

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/itepastra/flurry/internal/flut"
	"github.com/itepastra/flurry/internal/pixel"
	"github.com/pierrec/lz4/v4"
)

var logger = log.New(log.Writer(), "httpapi: ", log.LstdFlags)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server holds the shared state HTTP handlers need.
type Server struct {
	store *flut.Store
}

// NewRouter builds the mux.Router exposing every HTTP and WebSocket
// endpoint against store.
func NewRouter(store *flut.Store) *mux.Router {
	s := &Server{store: store}

	r := mux.NewRouter()
	r.HandleFunc("/canvases", s.serveCanvases)
	r.HandleFunc("/canvas/{id}/raw", s.serveCanvasRaw)
	r.HandleFunc("/ws/image", s.serveImageStream)
	r.HandleFunc("/ws/stats", s.serveStatsStream)
	return r
}

type canvasInfo struct {
	ID     uint8  `json:"id"`
	Width  uint16 `json:"width"`
	Height uint16 `json:"height"`
}

// serveCanvases lists every configured canvas and its dimensions.
func (s *Server) serveCanvases(w http.ResponseWriter, r *http.Request) {
	ids := s.store.CanvasIDs()
	infos := make([]canvasInfo, 0, len(ids))
	for _, id := range ids {
		cv, err := s.store.Canvas(id)
		if err != nil {
			continue
		}
		width, height := cv.Dimensions()
		infos = append(infos, canvasInfo{ID: id, Width: width, Height: height})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		logger.Printf("encode canvas list: %v", err)
	}
}

// serveCanvasRaw dumps a canvas's current pixels as lz4-compressed
// packed RGB triples, a debug tool that is never read back into a
// canvas.
func (s *Server) serveCanvasRaw(w http.ResponseWriter, r *http.Request) {
	id, err := parseCanvasID(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cv, err := s.store.Canvas(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	width, height := cv.Dimensions()
	snapshot := make([]pixel.Word, int(width)*int(height))
	cv.Snapshot(snapshot)

	raw := make([]byte, 0, len(snapshot)*3)
	for _, word := range snapshot {
		r, g, b := word.Unpack()
		raw = append(raw, r, g, b)
	}

	compressed, err := compress(raw)
	if err != nil {
		http.Error(w, "compression failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Canvas-Width", strconv.Itoa(int(width)))
	w.Header().Set("X-Canvas-Height", strconv.Itoa(int(height)))
	w.Write(compressed)
}

// compress lz4-frames data.
func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// serveImageStream upgrades to a WebSocket and joins the requested
// canvas's image subscriber set, honoring optional maxw/maxh downscale
// query params.
func (s *Server) serveImageStream(w http.ResponseWriter, r *http.Request) {
	id, err := parseCanvasID(r.URL.Query().Get("canvas"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	subs, err := s.store.ImageSubscribers(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Printf("upgrade image stream: %v", err)
		return
	}

	sub := flut.NewSubscriber(conn, websocket.BinaryMessage)
	sub.MaxW = parseNonNegativeInt(r.URL.Query().Get("maxw"))
	sub.MaxH = parseNonNegativeInt(r.URL.Query().Get("maxh"))
	subs.Add(sub)

	go dropOnClientClose(conn, subs, sub)
}

// serveStatsStream upgrades to a WebSocket and joins the process-wide
// stats subscriber set.
func (s *Server) serveStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Printf("upgrade stats stream: %v", err)
		return
	}
	sub := flut.NewSubscriber(conn, websocket.TextMessage)
	subs := s.store.StatsSubscribers()
	subs.Add(sub)

	go dropOnClientClose(conn, subs, sub)
}

// dropOnClientClose blocks reading (and discarding) inbound frames
// until the client disconnects, then removes the subscriber. Spectator
// connections never send anything meaningful; this loop exists only to
// notice EOF.
func dropOnClientClose(conn *websocket.Conn, subs *flut.SubscriberSet, sub *flut.Subscriber) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			subs.Remove(sub)
			return
		}
	}
}

func parseCanvasID(s string) (uint8, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(n), nil
}

func parseNonNegativeInt(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
