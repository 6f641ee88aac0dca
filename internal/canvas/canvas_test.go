package canvas

import (
	"sync"
	"testing"
)

func TestSetThenGetRoundTrips(t *testing.T) {
	c := New(64, 64)
	if err := c.Set(10, 20, 0xff, 0x88, 0x00); err != nil {
		t.Fatalf("Set: %v", err)
	}
	r, g, b, err := c.Get(10, 20)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r != 0xff || g != 0x88 || b != 0x00 {
		t.Fatalf("got (%x,%x,%x), want (ff,88,00)", r, g, b)
	}
}

func TestGraySetIsThreeEqualChannels(t *testing.T) {
	c := New(4, 4)
	if err := c.Set(1, 1, 0x80, 0x80, 0x80); err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := c.Get(1, 1)
	if r != 0x80 || g != 0x80 || b != 0x80 {
		t.Fatalf("got (%x,%x,%x)", r, g, b)
	}
}

func TestBlendWhiteOverBlackAtHalfAlpha(t *testing.T) {
	c := New(4, 4)
	if err := c.Set(2, 2, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Blend(2, 2, 0xff, 0xff, 0xff, 0x80); err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := c.Get(2, 2)
	if r != 0x80 || g != 0x80 || b != 0x80 {
		t.Fatalf("got (%x,%x,%x), want (80,80,80)", r, g, b)
	}
}

func TestBlendZeroAlphaIsNoOp(t *testing.T) {
	c := New(4, 4)
	c.Set(0, 0, 0x11, 0x22, 0x33)
	if err := c.Blend(0, 0, 0xff, 0xff, 0xff, 0); err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := c.Get(0, 0)
	if r != 0x11 || g != 0x22 || b != 0x33 {
		t.Fatalf("blend with a=0 changed the pixel: (%x,%x,%x)", r, g, b)
	}
}

func TestBlendFullAlphaEqualsSet(t *testing.T) {
	c := New(4, 4)
	c.Set(0, 0, 0x11, 0x22, 0x33)
	if err := c.Blend(0, 0, 0xaa, 0xbb, 0xcc, 0xff); err != nil {
		t.Fatal(err)
	}
	r, g, b, _ := c.Get(0, 0)
	if r != 0xaa || g != 0xbb || b != 0xcc {
		t.Fatalf("got (%x,%x,%x), want (aa,bb,cc)", r, g, b)
	}
}

func TestOutOfBounds(t *testing.T) {
	c := New(10, 10)
	if _, _, _, err := c.Get(10, 0); err != ErrOutOfBounds {
		t.Fatalf("Get: want ErrOutOfBounds, got %v", err)
	}
	if err := c.Set(0, 10, 1, 2, 3); err != ErrOutOfBounds {
		t.Fatalf("Set: want ErrOutOfBounds, got %v", err)
	}
	if err := c.Blend(0, 10, 1, 2, 3, 4); err != ErrOutOfBounds {
		t.Fatalf("Blend: want ErrOutOfBounds, got %v", err)
	}
}

// TestConcurrentWritesNeverTearChannels drives many goroutines writing
// distinct, fixed color triples into one shared pixel and checks
// that every observed Get() returns a triple that some writer actually
// submitted, never a mix of two writers' channels.
func TestConcurrentWritesNeverTearChannels(t *testing.T) {
	c := New(8, 8)
	palette := [][3]byte{
		{0xff, 0x00, 0x00},
		{0x00, 0xff, 0x00},
		{0x00, 0x00, 0xff},
		{0xff, 0xff, 0x00},
	}
	valid := func(r, g, b byte) bool {
		for _, p := range palette {
			if p[0] == r && p[1] == g && p[2] == b {
				return true
			}
		}
		return false
	}

	const goroutines = 16
	const iterations = 2000

	// Start from a palette color so the reader never sees the initial
	// clear (black) pixel, which no writer submits.
	c.Set(3, 3, palette[0][0], palette[0][1], palette[0][2])

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
				r, g, b, err := c.Get(3, 3)
				if err != nil {
					t.Error(err)
					return
				}
				if !valid(r, g, b) {
					t.Errorf("torn read: (%x,%x,%x)", r, g, b)
					return
				}
			}
		}
	}()

	var writers sync.WaitGroup
	writers.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer writers.Done()
			p := palette[i%len(palette)]
			for j := 0; j < iterations; j++ {
				c.Set(3, 3, p[0], p[1], p[2])
			}
		}(i)
	}
	writers.Wait()
	close(stop)
	<-readerDone
}

func TestNonOverlappingWritesLeaveLastWritePerPixel(t *testing.T) {
	c := New(4, 4)
	var wg sync.WaitGroup
	for x := uint16(0); x < 4; x++ {
		for y := uint16(0); y < 4; y++ {
			wg.Add(1)
			go func(x, y uint16) {
				defer wg.Done()
				c.Set(x, y, byte(x), byte(y), 0)
			}(x, y)
		}
	}
	wg.Wait()
	for x := uint16(0); x < 4; x++ {
		for y := uint16(0); y < 4; y++ {
			r, g, b, _ := c.Get(x, y)
			if r != byte(x) || g != byte(y) || b != 0 {
				t.Fatalf("pixel (%d,%d) = (%x,%x,%x), want (%x,%x,00)", x, y, r, g, b, x, y)
			}
		}
	}
}
