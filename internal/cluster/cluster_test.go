package cluster

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestPixelEventRoundTrips(t *testing.T) {
	want := PixelEvent{Origin: uuid.New(), CanvasID: 2, X: 10, Y: 20, R: 1, G: 2, B: 3, A: 4}
	body, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	var got PixelEvent
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestConnectionEventRoundTrips(t *testing.T) {
	want := ConnectionEvent{Origin: uuid.New(), Count: 7}
	body, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	var got ConnectionEvent
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
