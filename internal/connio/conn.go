// Package connio runs the per-TCP-connection command loop: read bytes,
// feed the active parser, execute commands against the addressed
// canvas, write replies, and let a command switch the active canvas or
// protocol mid-stream.
//
// A reading goroutine and a writing goroutine, joined by a bounded
// channel, exist so a slow TCP peer's write buffer can never stall the
// read side of a different connection.
package connio

import (
	"errors"
	"io"
	"log"
	"net"
	"time"

	"github.com/itepastra/flurry/internal/canvas"
	"github.com/itepastra/flurry/internal/flut"
	"github.com/itepastra/flurry/internal/protocol"
)

// ErrBackpressure is the reason a connection is closed when its peer
// stops draining faster than replies accumulate.
var ErrBackpressure = errors.New("connio: write buffer high-water mark exceeded")

// outboundQueueDepth bounds how many pending write chunks a connection
// may accumulate before it is judged unresponsive and dropped.
const outboundQueueDepth = 256

// readChunkSize is how much is read from the socket per Read call.
const readChunkSize = 64 * 1024

// maxPendingBytes is the high-water mark on unconsumed read-buffer
// bytes; exceeding it (a client sending an enormous single line/frame
// with no terminator) is treated the same as write backpressure.
const maxPendingBytes = 4 << 20

var logger = log.New(log.Writer(), "connio: ", log.LstdFlags)

// Handle runs the full lifetime of one accepted TCP connection: register
// with the store, pump reads and writes concurrently, execute commands,
// and deregister on exit. It returns once the connection is closed for
// any reason.
func Handle(nc net.Conn, store *flut.Store) {
	store.ConnectionOpened()
	defer store.ConnectionClosed()
	defer nc.Close()

	c := &conn{
		nc:      nc,
		store:   store,
		kind:    protocol.Text,
		outCh:   make(chan []byte, outboundQueueDepth),
		closeCh: make(chan struct{}),
	}

	go c.writeLoop()
	c.readLoop()

	close(c.closeCh)
}

type conn struct {
	nc           net.Conn
	store        *flut.Store
	activeCanvas uint8
	kind         protocol.Kind
	pending      []byte
	outCh        chan []byte
	closeCh      chan struct{}
}

func (c *conn) readLoop() {
	buf := make([]byte, readChunkSize)
	var cmdScratch []protocol.Command

	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			c.pending = append(c.pending, buf[:n]...)
			if len(c.pending) > maxPendingBytes {
				c.abort(ErrBackpressure)
				return
			}

			reply, drainErr := c.drain(cmdScratch[:0])
			if len(reply) > 0 {
				if !c.send(reply) {
					return
				}
			}
			if drainErr != nil {
				if c.kind == protocol.Binary {
					// No frame delimiter: a parse error is terminal.
					return
				}
				// Text: drain() never returns a parse error; it
				// appends an error line and keeps parsing past the
				// bad line itself.
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Printf("read error: %v", err)
			}
			return
		}
	}
}

// drain feeds as much of c.pending through the active parser as
// possible, executes every resulting command, appends replies to a
// freshly allocated buffer, and advances c.pending past whatever was
// consumed. After a SwitchProtocol command it switches c.kind and keeps
// draining the remaining bytes with the newly active parser. A text
// parse error becomes an error line and parsing continues at the next
// line; only a binary parse error is returned.
func (c *conn) drain(cmdScratch []protocol.Command) ([]byte, error) {
	var reply []byte
	for {
		var (
			cmds     []protocol.Command
			consumed int
			err      error
		)
		switch c.kind {
		case protocol.Text:
			cmds, consumed, err = protocol.TextParser{}.Feed(c.pending, cmdScratch[:0])
		default:
			cmds, consumed, err = protocol.BinaryParser{}.Feed(c.pending, cmdScratch[:0])
		}

		for _, cmd := range cmds {
			reply = c.execute(cmd, reply)
		}
		c.pending = c.pending[consumed:]

		if err != nil {
			if c.kind == protocol.Binary {
				return reply, err
			}
			// Text: Feed has already consumed the malformed line, so
			// reply with one error line and keep parsing after it.
			reply = protocol.FormatError(reply, "malformed command")
			continue
		}
		if consumed == 0 {
			return reply, nil
		}
		if len(cmds) > 0 && cmds[len(cmds)-1].Tag == protocol.TagSwitchProtocol {
			c.kind = cmds[len(cmds)-1].Protocol
			continue
		}
	}
}

func (c *conn) execute(cmd protocol.Command, reply []byte) []byte {
	switch cmd.Tag {
	case protocol.TagHelp:
		if c.kind == protocol.Text {
			return append(reply, protocol.HelpText...)
		}
		return append(reply, protocol.BinaryHelpText...)

	case protocol.TagSize:
		cv, err := c.store.Canvas(cmd.Canvas)
		if err != nil {
			return c.replyNoSuchCanvas(reply)
		}
		w, h := cv.Dimensions()
		if c.kind == protocol.Text {
			return protocol.FormatSize(reply, w, h)
		}
		return protocol.EncodeSize(reply, w, h)

	case protocol.TagGetPixel:
		id := c.addressedCanvas(cmd)
		cv, err := c.store.Canvas(id)
		if err != nil {
			return c.replyNoSuchCanvas(reply)
		}
		r, g, b, err := cv.Get(cmd.X, cmd.Y)
		if err != nil {
			return c.replyOutOfBounds(reply)
		}
		if c.kind == protocol.Text {
			return protocol.FormatGetPixel(reply, cmd.X, cmd.Y, r, g, b)
		}
		return protocol.EncodeGetPixel(reply, r, g, b)

	case protocol.TagSetPixelRGB, protocol.TagSetPixelGray:
		id := c.addressedCanvas(cmd)
		cv, err := c.store.Canvas(id)
		if err != nil {
			return c.replyNoSuchCanvas(reply)
		}
		if err := cv.Set(cmd.X, cmd.Y, cmd.R, cmd.G, cmd.B); err != nil {
			return c.replyOutOfBounds(reply)
		}
		c.store.PixelWritten(id, cmd.X, cmd.Y, cmd.R, cmd.G, cmd.B, 0xff)
		return reply

	case protocol.TagBlendPixelRGBA:
		id := c.addressedCanvas(cmd)
		cv, err := c.store.Canvas(id)
		if err != nil {
			return c.replyNoSuchCanvas(reply)
		}
		if err := cv.Blend(cmd.X, cmd.Y, cmd.R, cmd.G, cmd.B, cmd.A); err != nil {
			return c.replyOutOfBounds(reply)
		}
		c.store.PixelWritten(id, cmd.X, cmd.Y, cmd.R, cmd.G, cmd.B, cmd.A)
		return reply

	case protocol.TagSwitchCanvas:
		if _, err := c.store.Canvas(cmd.Canvas); err != nil {
			return c.replyNoSuchCanvas(reply)
		}
		c.activeCanvas = cmd.Canvas
		return reply

	case protocol.TagSwitchProtocol:
		// Applied by drain(); nothing to do here.
		return reply

	default:
		return reply
	}
}

// addressedCanvas resolves which canvas a pixel-level command targets:
// the connection's active canvas in text mode (the text grammar never
// carries an explicit canvas id on PX), or the wire-supplied id in
// binary mode (the binary grammar always carries one explicitly).
func (c *conn) addressedCanvas(cmd protocol.Command) uint8 {
	if c.kind == protocol.Text {
		return c.activeCanvas
	}
	return cmd.Canvas
}

// replyOutOfBounds and replyNoSuchCanvas implement this server's error
// policy: text mode gets a one-line error and keeps going; binary mode
// has no error frame, so the command is silently dropped and the
// connection stays open.
func (c *conn) replyOutOfBounds(reply []byte) []byte {
	if c.kind == protocol.Text {
		return protocol.FormatError(reply, canvas.ErrOutOfBounds.Error())
	}
	return reply
}

func (c *conn) replyNoSuchCanvas(reply []byte) []byte {
	if c.kind == protocol.Text {
		return protocol.FormatError(reply, flut.ErrNoSuchCanvas.Error())
	}
	return reply
}

// send hands a coalesced reply chunk to the writer goroutine, closing
// the connection if the outbound queue is already saturated.
func (c *conn) send(chunk []byte) bool {
	select {
	case c.outCh <- chunk:
		return true
	default:
		c.abort(ErrBackpressure)
		return false
	}
}

func (c *conn) abort(reason error) {
	logger.Printf("closing connection: %v", reason)
	c.nc.Close()
}

func (c *conn) writeLoop() {
	for {
		select {
		case chunk, ok := <-c.outCh:
			if !ok {
				return
			}
			c.nc.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if _, err := c.nc.Write(chunk); err != nil {
				c.nc.Close()
				return
			}
		case <-c.closeCh:
			// Best-effort drain of whatever is already queued before
			// giving up.
			for {
				select {
				case chunk := <-c.outCh:
					c.nc.Write(chunk)
				default:
					return
				}
			}
		}
	}
}
