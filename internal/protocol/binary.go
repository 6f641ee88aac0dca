package protocol

import "encoding/binary"

const (
	opSize           = 0x73
	opHelp           = 0x68
	opGetPixel       = 0x20
	opSetPixelRGB    = 0x80
	opBlendPixelRGBA = 0x81
	opSetPixelGray   = 0x82
)

// frameLen returns the total record length (opcode included) for a known
// opcode, or 0 if the opcode is unrecognized.
func frameLen(op byte) int {
	switch op {
	case opHelp:
		return 1
	case opSize:
		return 2
	case opGetPixel:
		return 6
	case opSetPixelRGB:
		return 9
	case opBlendPixelRGBA:
		return 10
	case opSetPixelGray:
		return 7
	default:
		return 0
	}
}

// BinaryParser implements the fixed-length opcode-framed binary
// protocol. It has no frame delimiter, so a bad opcode is a terminal
// error for the connection: the parser has no way to resynchronize on
// the next record boundary.
type BinaryParser struct{}

var _ Parser = BinaryParser{}

// Feed implements Parser.
func (BinaryParser) Feed(buf []byte, dst []Command) ([]Command, int, error) {
	consumed := 0
	for consumed < len(buf) {
		op := buf[consumed]
		n := frameLen(op)
		if n == 0 {
			return dst, consumed, ErrParse
		}
		if consumed+n > len(buf) {
			return dst, consumed, nil
		}
		frame := buf[consumed : consumed+n]
		dst = append(dst, decodeFrame(op, frame))
		consumed += n
	}
	return dst, consumed, nil
}

func decodeFrame(op byte, frame []byte) Command {
	switch op {
	case opHelp:
		return Command{Tag: TagHelp}
	case opSize:
		return Command{Tag: TagSize, Canvas: frame[1]}
	case opGetPixel:
		return Command{
			Tag:    TagGetPixel,
			Canvas: frame[1],
			X:      binary.LittleEndian.Uint16(frame[2:4]),
			Y:      binary.LittleEndian.Uint16(frame[4:6]),
		}
	case opSetPixelRGB:
		return Command{
			Tag:    TagSetPixelRGB,
			Canvas: frame[1],
			X:      binary.LittleEndian.Uint16(frame[2:4]),
			Y:      binary.LittleEndian.Uint16(frame[4:6]),
			R:      frame[6],
			G:      frame[7],
			B:      frame[8],
		}
	case opBlendPixelRGBA:
		return Command{
			Tag:    TagBlendPixelRGBA,
			Canvas: frame[1],
			X:      binary.LittleEndian.Uint16(frame[2:4]),
			Y:      binary.LittleEndian.Uint16(frame[4:6]),
			R:      frame[6],
			G:      frame[7],
			B:      frame[8],
			A:      frame[9],
		}
	case opSetPixelGray:
		v := frame[6]
		return Command{
			Tag:    TagSetPixelGray,
			Canvas: frame[1],
			X:      binary.LittleEndian.Uint16(frame[2:4]),
			Y:      binary.LittleEndian.Uint16(frame[4:6]),
			R:      v, G: v, B: v,
		}
	default:
		panic("protocol: decodeFrame called with unknown opcode")
	}
}

// EncodeSize appends the binary Size reply: u16 W, u16 H, little-endian.
func EncodeSize(dst []byte, w, h uint16) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint16(buf[0:2], w)
	binary.LittleEndian.PutUint16(buf[2:4], h)
	return append(dst, buf[:]...)
}

// EncodeGetPixel appends the binary GetPixel reply: u8 r, u8 g, u8 b.
func EncodeGetPixel(dst []byte, r, g, b byte) []byte {
	return append(dst, r, g, b)
}

// EncodeSetPixelRGB appends the wire bytes of a SetPixelRGB command,
// opcode included, exactly as §4.2.2 specifies.
func EncodeSetPixelRGB(dst []byte, canvas uint8, x, y uint16, r, g, b byte) []byte {
	var buf [9]byte
	buf[0] = opSetPixelRGB
	buf[1] = canvas
	binary.LittleEndian.PutUint16(buf[2:4], x)
	binary.LittleEndian.PutUint16(buf[4:6], y)
	buf[6], buf[7], buf[8] = r, g, b
	return append(dst, buf[:]...)
}

// EncodeBlendPixelRGBA appends the wire bytes of a BlendPixelRGBA
// command, opcode included.
func EncodeBlendPixelRGBA(dst []byte, canvas uint8, x, y uint16, r, g, b, a byte) []byte {
	var buf [10]byte
	buf[0] = opBlendPixelRGBA
	buf[1] = canvas
	binary.LittleEndian.PutUint16(buf[2:4], x)
	binary.LittleEndian.PutUint16(buf[4:6], y)
	buf[6], buf[7], buf[8], buf[9] = r, g, b, a
	return append(dst, buf[:]...)
}

// EncodeSetPixelGray appends the wire bytes of a SetPixelGray command,
// opcode included.
func EncodeSetPixelGray(dst []byte, canvas uint8, x, y uint16, v byte) []byte {
	var buf [7]byte
	buf[0] = opSetPixelGray
	buf[1] = canvas
	binary.LittleEndian.PutUint16(buf[2:4], x)
	binary.LittleEndian.PutUint16(buf[4:6], y)
	buf[6] = v
	return append(dst, buf[:]...)
}

// EncodeGetPixelRequest appends the wire bytes of a GetPixel command,
// opcode included.
func EncodeGetPixelRequest(dst []byte, canvas uint8, x, y uint16) []byte {
	var buf [6]byte
	buf[0] = opGetPixel
	buf[1] = canvas
	binary.LittleEndian.PutUint16(buf[2:4], x)
	binary.LittleEndian.PutUint16(buf[4:6], y)
	return append(dst, buf[:]...)
}

// EncodeSizeRequest appends the wire bytes of a Size command, opcode
// included.
func EncodeSizeRequest(dst []byte, canvas uint8) []byte {
	return append(dst, opSize, canvas)
}

// EncodeHelpRequest appends the wire bytes of a Help command.
func EncodeHelpRequest(dst []byte) []byte {
	return append(dst, opHelp)
}

// BinaryHelpText is the binary protocol's HELP reply body.
const BinaryHelpText = "flurry binary protocol: 0x68 help, 0x73+u8 size, " +
	"0x20+u8+u16+u16 get, 0x80+u8+u16+u16+u8+u8+u8 set rgb, " +
	"0x81 blend rgba, 0x82 set gray\n"
