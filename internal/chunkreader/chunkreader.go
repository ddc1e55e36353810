// Package chunkreader decodes the container engine's log stream into
// (stream label, line) pairs.
//
// Two framings are supported: a raw TTY stream with no header, delimited
// only by '\n', and the multiplexed format the engine uses for non-TTY
// containers, where each frame is an 8-byte header
// {stream_type:u8, reserved:u8[3], length:u32 big-endian} followed by
// length bytes of payload. The parser tolerates arbitrary chunk boundaries:
// a frame header, a frame payload, or a line may be split across any number
// of Feed calls, and partial lines are buffered per stream until a
// terminating '\n' arrives.
package chunkreader

import (
	"encoding/binary"
)

// Stream labels emitted to the line callback.
const (
	StreamTTY    = "tty"
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

const headerLen = 8

// LineFunc is invoked synchronously, once per complete line, in the exact
// order lines were decoded from the input. line never includes the
// trailing newline.
type LineFunc func(line string, stream string)

// Parser decodes a single container's log stream. It is not safe for
// concurrent use — spec §4.A requires no internal concurrency, so callers
// serialize Feed calls themselves (the container worker owns one Parser per
// stream session).
type Parser struct {
	tty bool
	on  LineFunc

	// multiplexed-mode frame header assembly
	header    [headerLen]byte
	headerLen int
	inFrame   bool
	frameType byte
	remaining uint32

	// per-stream-label partial line buffers
	partial map[string][]byte
}

// New returns a Parser for a container. When tty is true the input is
// treated as an unframed byte stream under the "tty" label; otherwise
// frames are demultiplexed into "stdout"/"stderr".
func New(tty bool, on LineFunc) *Parser {
	return &Parser{
		tty:     tty,
		on:      on,
		partial: make(map[string][]byte),
	}
}

// Feed consumes the next chunk of raw bytes from the engine. It must never
// drop bytes: anything that does not complete a line is buffered until the
// next Feed call (or flushed by Close at stream end).
func (p *Parser) Feed(chunk []byte) {
	if p.tty {
		p.feedLines(StreamTTY, chunk)
		return
	}
	p.feedFrames(chunk)
}

// Close flushes any buffered partial line as a final, newline-less line.
// The engine's streaming API always closes on EOF; a trailing partial line
// with no terminator is still surfaced rather than silently dropped.
func (p *Parser) Close() {
	for stream, buf := range p.partial {
		if len(buf) > 0 {
			p.on(string(buf), stream)
		}
		delete(p.partial, stream)
	}
}

func (p *Parser) feedLines(stream string, chunk []byte) {
	buf := append(p.partial[stream], chunk...)
	for {
		idx := indexByte(buf, '\n')
		if idx < 0 {
			p.partial[stream] = buf
			return
		}
		line := buf[:idx]
		p.on(string(line), stream)
		buf = buf[idx+1:]
	}
}

func (p *Parser) feedFrames(chunk []byte) {
	for len(chunk) > 0 {
		if !p.inFrame {
			need := headerLen - p.headerLen
			n := copy(p.header[p.headerLen:], chunk[:min(need, len(chunk))])
			p.headerLen += n
			chunk = chunk[n:]
			if p.headerLen < headerLen {
				return
			}
			p.frameType = p.header[0]
			p.remaining = binary.BigEndian.Uint32(p.header[4:8])
			p.headerLen = 0
			p.inFrame = true
			if p.remaining == 0 {
				p.inFrame = false
			}
			continue
		}

		take := p.remaining
		if uint32(len(chunk)) < take {
			take = uint32(len(chunk))
		}
		p.feedLines(streamLabel(p.frameType), chunk[:take])
		chunk = chunk[take:]
		p.remaining -= take
		if p.remaining == 0 {
			p.inFrame = false
		}
	}
}

// streamLabel maps the engine's stream_type byte to a label. Type 0
// (stdin) is not expected on a log stream; per spec §4.A it is treated as
// stdout rather than dropped.
func streamLabel(streamType byte) string {
	switch streamType {
	case 2:
		return StreamStderr
	default:
		return StreamStdout
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
