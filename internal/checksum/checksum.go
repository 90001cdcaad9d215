package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Entry is one named part of a multi-part digest.
type Entry struct {
	Name string
	Data []byte
}

// SumEntries digests entries in the given order. Names and payloads are
// length-prefixed so that adjacent entries cannot run into each other.
func SumEntries(entries []Entry) string {
	h := sha256.New()
	var lenBuf [8]byte
	write := func(b []byte) {
		n := uint64(len(b))
		for i := range lenBuf {
			lenBuf[i] = byte(n >> (8 * i))
		}
		h.Write(lenBuf[:])
		h.Write(b)
	}
	for _, e := range entries {
		write([]byte(e.Name))
		write(e.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}
