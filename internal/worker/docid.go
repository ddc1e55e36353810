package worker

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/twmb/murmur3"
)

// documentID computes the deterministic document id spec §4.D step 9
// describes: a 128-bit murmur3 hash of the event's canonical JSON encoding
// (insertion-ordered, via pkg/value.Map.MarshalJSON so the same event always
// hashes the same way regardless of map iteration order), packed big-endian
// and base64-encoded without padding. 16 bytes of base64 always ends in
// "==" under standard padding, so RawStdEncoding's 22-character output is
// used directly rather than trimming StdEncoding's result by hand.
func documentID(eventJSON []byte) string {
	h1, h2 := murmur3.Sum128(eventJSON)

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], h1)
	binary.BigEndian.PutUint64(buf[8:16], h2)

	return base64.RawStdEncoding.EncodeToString(buf[:])
}
