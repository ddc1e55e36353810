package chunkreader

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decoded struct {
	line   string
	stream string
}

func frame(streamType byte, payload string) []byte {
	buf := make([]byte, headerLen+len(payload))
	buf[0] = streamType
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[8:], payload)
	return buf
}

func TestMultiplexedSingleFrameTwoLines(t *testing.T) {
	var got []decoded
	p := New(false, func(line, stream string) {
		got = append(got, decoded{line, stream})
	})

	p.Feed(frame(1, "hi\n!\n"))

	require.Len(t, got, 2)
	assert.Equal(t, decoded{"hi", "stdout"}, got[0])
	assert.Equal(t, decoded{"!", "stdout"}, got[1])
}

func TestMultiplexedStderrLabel(t *testing.T) {
	var got []decoded
	p := New(false, func(line, stream string) { got = append(got, decoded{line, stream}) })
	p.Feed(frame(2, "oops\n"))
	require.Len(t, got, 1)
	assert.Equal(t, "stderr", got[0].stream)
}

func TestTTYMode(t *testing.T) {
	var got []decoded
	p := New(true, func(line, stream string) { got = append(got, decoded{line, stream}) })
	p.Feed([]byte("one\ntwo\n"))
	require.Len(t, got, 2)
	assert.Equal(t, "tty", got[0].stream)
	assert.Equal(t, "one", got[0].line)
	assert.Equal(t, "two", got[1].line)
}

func TestPartialLineAcrossChunks(t *testing.T) {
	var got []decoded
	p := New(true, func(line, stream string) { got = append(got, decoded{line, stream}) })

	p.Feed([]byte("hel"))
	p.Feed([]byte("lo\nworl"))
	p.Feed([]byte("d\n"))

	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].line)
	assert.Equal(t, "world", got[1].line)
}

func TestHeaderSplitAcrossChunks(t *testing.T) {
	var got []decoded
	p := New(false, func(line, stream string) { got = append(got, decoded{line, stream}) })

	fr := frame(1, "split-header\n")
	p.Feed(fr[:3])
	p.Feed(fr[3:])

	require.Len(t, got, 1)
	assert.Equal(t, "split-header", got[0].line)
}

func TestPartialLineAcrossFrameBoundary(t *testing.T) {
	var got []decoded
	p := New(false, func(line, stream string) { got = append(got, decoded{line, stream}) })

	p.Feed(frame(1, "par"))
	p.Feed(frame(1, "tial\n"))

	require.Len(t, got, 1)
	assert.Equal(t, "partial", got[0].line)
}

// TestRoundTripArbitraryChunkBoundaries is property 4 from spec §8: feeding
// the same frame sequence split at every possible byte boundary must emit
// the same lines in the same order with correct labels, regardless of how
// the bytes are chunked.
func TestRoundTripArbitraryChunkBoundaries(t *testing.T) {
	full := append(frame(1, "alpha\nbeta"), frame(1, "\ngamma\n")...)
	full = append(full, frame(2, "err1\nerr2\n")...)

	want := []decoded{
		{"alpha", "stdout"},
		{"beta", "stdout"},
		{"gamma", "stdout"},
		{"err1", "stderr"},
		{"err2", "stderr"},
	}

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		var got []decoded
		p := New(false, func(line, stream string) { got = append(got, decoded{line, stream}) })

		remaining := full
		for len(remaining) > 0 {
			n := 1 + rng.Intn(len(remaining))
			p.Feed(remaining[:n])
			remaining = remaining[n:]
		}

		assert.Equal(t, want, got, "trial %d", trial)
	}
}

func TestCloseFlushesTrailingPartialLine(t *testing.T) {
	var got []decoded
	p := New(true, func(line, stream string) { got = append(got, decoded{line, stream}) })
	p.Feed([]byte("no newline"))
	p.Close()
	require.Len(t, got, 1)
	assert.Equal(t, "no newline", got[0].line)
}
