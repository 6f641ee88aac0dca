package connio

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/itepastra/flurry/internal/flut"
)

func newTestStore(t *testing.T) *flut.Store {
	t.Helper()
	return flut.NewStore([]flut.CanvasConfig{{ID: 0, Width: 800, Height: 600}})
}

// pipe wires a net.Pipe connection through Handle on one end, leaving
// the caller the other end to script a pixelflut session against.
func pipe(t *testing.T, store *flut.Store) (client net.Conn, done chan struct{}) {
	t.Helper()
	server, client := net.Pipe()
	done = make(chan struct{})
	go func() {
		Handle(server, store)
		close(done)
	}()
	return client, done
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	return line
}

func TestSizeQuery(t *testing.T) {
	store := newTestStore(t)
	client, _ := pipe(t, store)
	defer client.Close()
	r := bufio.NewReader(client)

	client.Write([]byte("SIZE\n"))
	if got := readLine(t, r); got != "SIZE 800 600\n" {
		t.Fatalf("got %q", got)
	}
}

func TestSetThenGetPixelRGB(t *testing.T) {
	store := newTestStore(t)
	client, _ := pipe(t, store)
	defer client.Close()
	r := bufio.NewReader(client)

	client.Write([]byte("PX 10 20 ff8800\nPX 10 20\n"))
	if got := readLine(t, r); got != "PX 10 20 ff8800\n" {
		t.Fatalf("got %q", got)
	}
}

func TestSetGrayThenGetExpandsToTripleChannel(t *testing.T) {
	store := newTestStore(t)
	client, _ := pipe(t, store)
	defer client.Close()
	r := bufio.NewReader(client)

	client.Write([]byte("PX 10 20 80\nPX 10 20\n"))
	if got := readLine(t, r); got != "PX 10 20 808080\n" {
		t.Fatalf("got %q", got)
	}
}

func TestBlendWhiteOverBlackAtHalfAlpha(t *testing.T) {
	store := newTestStore(t)
	client, _ := pipe(t, store)
	defer client.Close()
	r := bufio.NewReader(client)

	client.Write([]byte("PX 10 20 000000\nPX 10 20 ffffff80\nPX 10 20\n"))
	if got := readLine(t, r); got != "PX 10 20 808080\n" {
		t.Fatalf("got %q", got)
	}
}

func TestOutOfBoundsGetsErrorLineAndConnectionStaysOpen(t *testing.T) {
	store := newTestStore(t)
	client, _ := pipe(t, store)
	defer client.Close()
	r := bufio.NewReader(client)

	client.Write([]byte("PX 99999 0 000000\n"))
	errLine := readLine(t, r)
	if len(errLine) == 0 || errLine[0] != 'E' {
		t.Fatalf("want an error line, got %q", errLine)
	}

	client.Write([]byte("SIZE\n"))
	if got := readLine(t, r); got != "SIZE 800 600\n" {
		t.Fatalf("connection should still accept commands after an error, got %q", got)
	}
}

func TestBinaryProtocolSwitchThenSetThenGet(t *testing.T) {
	store := newTestStore(t)
	client, _ := pipe(t, store)
	defer client.Close()

	client.Write([]byte("PROTOCOL binary\n"))

	frame := []byte{0x80, 0x00, 0x05, 0x00, 0x07, 0x00, 0x11, 0x22, 0x33}
	client.Write(frame)

	getFrame := []byte{0x20, 0x00, 0x05, 0x00, 0x07, 0x00}
	client.Write(getFrame)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply := make([]byte, 3)
	n := 0
	for n < 3 {
		m, err := client.Read(reply[n:])
		if err != nil {
			t.Fatalf("read reply: %v", err)
		}
		n += m
	}
	want := []byte{0x11, 0x22, 0x33}
	for i := range want {
		if reply[i] != want[i] {
			t.Fatalf("got % x, want % x", reply, want)
		}
	}
}

func TestBinarySizeQuery(t *testing.T) {
	store := newTestStore(t)
	client, _ := pipe(t, store)
	defer client.Close()

	client.Write([]byte("PROTOCOL binary\n"))
	client.Write([]byte{0x73, 0x00})

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply := make([]byte, 4)
	n := 0
	for n < 4 {
		m, err := client.Read(reply[n:])
		if err != nil {
			t.Fatalf("read reply: %v", err)
		}
		n += m
	}
	width := uint16(reply[0]) | uint16(reply[1])<<8
	height := uint16(reply[2]) | uint16(reply[3])<<8
	if width != 800 || height != 600 {
		t.Fatalf("got %dx%d, want 800x600", width, height)
	}
}

func TestConnectionCountTracksLifecycle(t *testing.T) {
	store := newTestStore(t)
	client, done := pipe(t, store)

	// Give the accept side a moment to register before asserting.
	deadline := time.Now().Add(time.Second)
	for store.LiveConnections() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if store.LiveConnections() != 1 {
		t.Fatalf("got %d live connections, want 1", store.LiveConnections())
	}

	client.Close()
	<-done

	if store.LiveConnections() != 0 {
		t.Fatalf("got %d live connections after close, want 0", store.LiveConnections())
	}
}
