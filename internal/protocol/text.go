package protocol

import (
	"bytes"
	"encoding/hex"
	"strconv"
)

// TextParser implements the line-oriented pixelflut text protocol. It
// carries no per-connection state of its own; the connection handler
// owns the active canvas id and only asks TextParser to turn bytes
// into Commands.
type TextParser struct{}

var _ Parser = TextParser{}

// Feed implements Parser.
func (TextParser) Feed(buf []byte, dst []Command) ([]Command, int, error) {
	consumed := 0
	for {
		rest := buf[consumed:]
		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			return dst, consumed, nil
		}
		line := rest[:nl]
		consumed += nl + 1

		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if len(line) == 0 {
			continue
		}
		if line[len(line)-1] == ' ' {
			return dst, consumed, ErrParse
		}

		cmd, err := parseTextLine(line)
		if err != nil {
			return dst, consumed, err
		}
		dst = append(dst, cmd)
		if cmd.Tag == TagSwitchProtocol {
			// Subsequent bytes belong to whichever parser the
			// connection handler switches to; stop here so it can.
			return dst, consumed, nil
		}
	}
}

func parseTextLine(line []byte) (Command, error) {
	var fieldBuf [4][]byte
	fields := splitFields(line, fieldBuf[:0])
	if len(fields) == 0 {
		return Command{}, ErrParse
	}

	switch string(fields[0]) {
	case "HELP":
		if len(fields) != 1 {
			return Command{}, ErrParse
		}
		return Command{Tag: TagHelp}, nil

	case "SIZE":
		switch len(fields) {
		case 1:
			return Command{Tag: TagSize}, nil
		case 2:
			id, err := parseUint8(fields[1])
			if err != nil {
				return Command{}, ErrParse
			}
			return Command{Tag: TagSize, Canvas: id}, nil
		default:
			return Command{}, ErrParse
		}

	case "PX":
		return parsePX(fields)

	case "CANVAS":
		if len(fields) != 2 {
			return Command{}, ErrParse
		}
		id, err := parseUint8(fields[1])
		if err != nil {
			return Command{}, ErrParse
		}
		return Command{Tag: TagSwitchCanvas, Canvas: id}, nil

	case "PROTOCOL":
		if len(fields) != 2 {
			return Command{}, ErrParse
		}
		switch string(fields[1]) {
		case "text":
			return Command{Tag: TagSwitchProtocol, Protocol: Text}, nil
		case "binary":
			return Command{Tag: TagSwitchProtocol, Protocol: Binary}, nil
		default:
			return Command{}, ErrParse
		}

	default:
		return Command{}, ErrParse
	}
}

func parsePX(fields [][]byte) (Command, error) {
	if len(fields) != 3 && len(fields) != 4 {
		return Command{}, ErrParse
	}
	x, err := parseUint16(fields[1])
	if err != nil {
		return Command{}, ErrParse
	}
	y, err := parseUint16(fields[2])
	if err != nil {
		return Command{}, ErrParse
	}
	if len(fields) == 3 {
		return Command{Tag: TagGetPixel, X: x, Y: y}, nil
	}

	color := fields[3]
	if len(color) == 0 || len(color)%2 != 0 || len(color) > 8 {
		return Command{}, ErrParse
	}

	var raw [4]byte
	n, err := hex.Decode(raw[:], color)
	if err != nil {
		return Command{}, ErrParse
	}
	switch n {
	case 3:
		return Command{Tag: TagSetPixelRGB, X: x, Y: y, R: raw[0], G: raw[1], B: raw[2]}, nil
	case 4:
		return Command{Tag: TagBlendPixelRGBA, X: x, Y: y, R: raw[0], G: raw[1], B: raw[2], A: raw[3]}, nil
	case 1:
		return Command{Tag: TagSetPixelGray, X: x, Y: y, R: raw[0], G: raw[0], B: raw[0]}, nil
	default:
		return Command{}, ErrParse
	}
}

func splitFields(line []byte, fields [][]byte) [][]byte {
	for len(line) > 0 {
		sp := bytes.IndexByte(line, ' ')
		if sp < 0 {
			fields = append(fields, line)
			break
		}
		if sp == 0 {
			// two consecutive spaces, or a leading space
			return nil
		}
		fields = append(fields, line[:sp])
		line = line[sp+1:]
	}
	return fields
}

func parseUint16(field []byte) (uint16, error) {
	v, err := strconv.ParseUint(string(field), 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func parseUint8(field []byte) (uint8, error) {
	v, err := strconv.ParseUint(string(field), 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

// FormatSize writes the reply for a Size command: "SIZE <W> <H>\n".
func FormatSize(dst []byte, w, h uint16) []byte {
	dst = append(dst, "SIZE "...)
	dst = strconv.AppendUint(dst, uint64(w), 10)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, uint64(h), 10)
	dst = append(dst, '\n')
	return dst
}

// FormatGetPixel writes the reply for a GetPixel command:
// "PX <x> <y> <RRGGBB>\n" in lowercase hex.
func FormatGetPixel(dst []byte, x, y uint16, r, g, b byte) []byte {
	dst = append(dst, "PX "...)
	dst = strconv.AppendUint(dst, uint64(x), 10)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, uint64(y), 10)
	dst = append(dst, ' ')
	dst = appendHexByte(dst, r)
	dst = appendHexByte(dst, g)
	dst = appendHexByte(dst, b)
	dst = append(dst, '\n')
	return dst
}

const hexDigits = "0123456789abcdef"

func appendHexByte(dst []byte, b byte) []byte {
	return append(dst, hexDigits[b>>4], hexDigits[b&0xf])
}

// FormatError writes a one-line, human-readable error reply.
func FormatError(dst []byte, msg string) []byte {
	dst = append(dst, "ERR "...)
	dst = append(dst, msg...)
	dst = append(dst, '\n')
	return dst
}

// HelpText is the text protocol's HELP reply body.
const HelpText = "flurry is a pixelflut server: SIZE, HELP, PX x y, PX x y RRGGBB, " +
	"PX x y RRGGBBAA, PX x y VV, CANVAS id, PROTOCOL text|binary\n"
