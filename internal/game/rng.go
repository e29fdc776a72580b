package game

import (
	"crypto/sha256"
	"encoding/binary"
)

// stream is a deterministic byte source: sha256(seed || counter) blocks,
// consumed word by word. Every piece of in-game randomness (challenges,
// auto-moves, decks) draws from a stream derived from the game seed plus a
// purpose label, so replays with the same seed are exact.
type stream struct {
	seed    []byte
	counter uint64
}

// deriveStream hashes the parts into a fresh stream seed.
func deriveStream(parts ...[]byte) *stream {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return &stream{seed: h.Sum(nil)}
}

func label(s string) []byte { return []byte(s) }

func u64bytes(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func (s *stream) next() [32]byte {
	buf := make([]byte, len(s.seed)+8)
	copy(buf, s.seed)
	binary.LittleEndian.PutUint64(buf[len(s.seed):], s.counter)
	s.counter++
	return sha256.Sum256(buf)
}

func (s *stream) uint64() uint64 {
	h := s.next()
	return binary.LittleEndian.Uint64(h[:8])
}

// intn returns a value in [0, n). n must be positive.
func (s *stream) intn(n int) int {
	return int(s.uint64() % uint64(n))
}

// intRange returns a value in [lo, hi] inclusive.
func (s *stream) intRange(lo, hi int) int {
	return lo + s.intn(hi-lo+1)
}

func (s *stream) pick(options []string) string {
	return options[s.intn(len(options))]
}
