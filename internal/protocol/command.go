// Package protocol implements the two pixelflut wire protocols (text and
// binary) as restartable byte-stream parsers that yield a shared Command
// variant type. Neither parser allocates on its hot path.
package protocol

import "errors"

// ErrParse means the byte stream could not be interpreted as a command
// under the active protocol.
var ErrParse = errors.New("protocol: malformed command")

// Kind identifies the active protocol on a connection.
type Kind int

const (
	Text Kind = iota
	Binary
)

// Tag identifies which case of Command is populated.
type Tag int

const (
	TagSize Tag = iota
	TagHelp
	TagGetPixel
	TagSetPixelRGB
	TagBlendPixelRGBA
	TagSetPixelGray
	TagSwitchCanvas
	TagSwitchProtocol
)

// Command is a closed tagged variant: exactly one case is meaningful,
// selected by Tag. It is a plain value so parsers can return it without
// allocating a heap object per command.
type Command struct {
	Tag    Tag
	Canvas uint8
	X, Y   uint16
	R, G, B, A byte
	Protocol Kind
}

// Parser is the capability shared by the text and binary parsers: feed it
// bytes, drain complete commands, and know how many bytes were consumed
// so the caller can keep the remainder in its read buffer.
type Parser interface {
	// Feed parses as many complete commands as buf contains and appends
	// them to dst. It returns the extended slice and the number of
	// leading bytes of buf that were consumed. Bytes past the last
	// complete command are left unconsumed rather than reported as an
	// error, so the caller can retry once more bytes arrive.
	//
	// A malformed command aborts feeding and returns ErrParse (text: the
	// caller is expected to resynchronize at the next newline; binary:
	// the caller is expected to close the connection, since there is no
	// frame delimiter to resynchronize on).
	Feed(buf []byte, dst []Command) ([]Command, int, error)
}
