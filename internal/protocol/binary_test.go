package protocol

import (
	"bytes"
	"testing"
)

func TestBinaryHelp(t *testing.T) {
	cmds, n, err := BinaryParser{}.Feed([]byte{opHelp}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(cmds) != 1 || cmds[0].Tag != TagHelp {
		t.Fatalf("got %+v, n=%d", cmds, n)
	}
}

func TestBinarySize(t *testing.T) {
	cmds, n, err := BinaryParser{}.Feed([]byte{opSize, 0x00}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := Command{Tag: TagSize, Canvas: 0}
	if n != 2 || len(cmds) != 1 || cmds[0] != want {
		t.Fatalf("got %+v, n=%d", cmds, n)
	}
}

func TestBinaryGetPixel(t *testing.T) {
	frame := []byte{opGetPixel, 0x00, 0x05, 0x00, 0x07, 0x00}
	cmds, n, err := BinaryParser{}.Feed(frame, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := Command{Tag: TagGetPixel, Canvas: 0, X: 5, Y: 7}
	if n != len(frame) || len(cmds) != 1 || cmds[0] != want {
		t.Fatalf("got %+v, n=%d", cmds, n)
	}
}

func TestBinarySetPixelRGB(t *testing.T) {
	frame := []byte{opSetPixelRGB, 0x00, 0x05, 0x00, 0x07, 0x00, 0x11, 0x22, 0x33}
	cmds, n, err := BinaryParser{}.Feed(frame, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := Command{Tag: TagSetPixelRGB, Canvas: 0, X: 5, Y: 7, R: 0x11, G: 0x22, B: 0x33}
	if n != len(frame) || len(cmds) != 1 || cmds[0] != want {
		t.Fatalf("got %+v, n=%d", cmds, n)
	}
}

func TestBinaryBlendPixelRGBA(t *testing.T) {
	frame := []byte{opBlendPixelRGBA, 0x01, 0x69, 0x42, 0x42, 0x69, 0x82, 0x00, 0xff, 0xa0}
	cmds, n, err := BinaryParser{}.Feed(frame, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := Command{Tag: TagBlendPixelRGBA, Canvas: 1, X: 0x4269, Y: 0x6942, R: 0x82, G: 0x00, B: 0xff, A: 0xa0}
	if n != len(frame) || len(cmds) != 1 || cmds[0] != want {
		t.Fatalf("got %+v, n=%d", cmds, n)
	}
}

func TestBinarySetPixelGray(t *testing.T) {
	frame := []byte{opSetPixelGray, 0x01, 0x69, 0x42, 0x42, 0x69, 0x82}
	cmds, n, err := BinaryParser{}.Feed(frame, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := Command{Tag: TagSetPixelGray, Canvas: 1, X: 0x4269, Y: 0x6942, R: 0x82, G: 0x82, B: 0x82}
	if n != len(frame) || len(cmds) != 1 || cmds[0] != want {
		t.Fatalf("got %+v, n=%d", cmds, n)
	}
}

func TestBinaryUnknownOpcodeIsTerminal(t *testing.T) {
	_, n, err := BinaryParser{}.Feed([]byte{0xEE}, nil)
	if err != ErrParse {
		t.Fatalf("want ErrParse, got %v", err)
	}
	if n != 0 {
		t.Fatalf("want 0 bytes consumed on terminal error, got %d", n)
	}
}

func TestBinaryPartialFrameConsumesNothing(t *testing.T) {
	cmds, n, err := BinaryParser{}.Feed([]byte{opSetPixelRGB, 0x00, 0x05, 0x00}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || len(cmds) != 0 {
		t.Fatalf("got %+v, n=%d, want nothing consumed", cmds, n)
	}
}

func TestBinaryIncrementalFeedMatchesWholeFeed(t *testing.T) {
	whole := []byte{
		opSetPixelRGB, 0x01, 0x69, 0x42, 0x42, 0x69, 0x82, 0x00, 0xff,
		opBlendPixelRGBA, 0x01, 0x69, 0x42, 0x42, 0x69, 0x82, 0x00, 0xff, 0xa0,
	}
	var p BinaryParser

	wholeCmds, _, err := p.Feed(whole, nil)
	if err != nil {
		t.Fatal(err)
	}

	for split := 0; split <= len(whole); split++ {
		var got []Command
		first, rest := whole[:split], whole[split:]

		got, n, err := p.Feed(first, got)
		if err != nil {
			t.Fatalf("split=%d: %v", split, err)
		}
		leftover := append(append([]byte{}, first[n:]...), rest...)
		more, _, err := p.Feed(leftover, nil)
		if err != nil {
			t.Fatalf("split=%d: %v", split, err)
		}
		got = append(got, more...)

		if len(got) != len(wholeCmds) {
			t.Fatalf("split=%d: got %d commands, want %d", split, len(got), len(wholeCmds))
		}
		for i := range got {
			if got[i] != wholeCmds[i] {
				t.Fatalf("split=%d: cmd %d = %+v, want %+v", split, i, got[i], wholeCmds[i])
			}
		}
	}
}

func TestEncodeSetPixelRGBMatchesWireLayout(t *testing.T) {
	got := EncodeSetPixelRGB(nil, 0x00, 5, 7, 0x11, 0x22, 0x33)
	want := []byte{opSetPixelRGB, 0x00, 0x05, 0x00, 0x07, 0x00, 0x11, 0x22, 0x33}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestEncodeThenDecodeRoundTrips(t *testing.T) {
	encoded := EncodeBlendPixelRGBA(nil, 3, 100, 200, 10, 20, 30, 40)
	cmds, n, err := BinaryParser{}.Feed(encoded, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := Command{Tag: TagBlendPixelRGBA, Canvas: 3, X: 100, Y: 200, R: 10, G: 20, B: 30, A: 40}
	if n != len(encoded) || len(cmds) != 1 || cmds[0] != want {
		t.Fatalf("got %+v", cmds)
	}
}
