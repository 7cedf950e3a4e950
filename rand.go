package addrmgr

import (
	crand "crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
)

// Rand is the random source consumed by the manager for bucket-key
// generation and for every probabilistic decision it makes: stochastic
// alias acceptance, bucket/position sampling, and Fisher-Yates enumeration.
// A Rand seeded identically to another must produce an identical sequence,
// which is what makes deterministic mode useful for test replay.
type Rand interface {
	// RandBool returns a uniformly random boolean.
	RandBool() bool

	// RandRange returns a uniformly random value in [0, n). It panics if
	// n is zero.
	RandRange(n uint32) uint32

	// RandBits returns b uniformly random bits, 0 < b <= 64.
	RandBits(b uint) uint64

	// RandUint256 returns 32 uniformly random bytes.
	RandUint256() [32]byte
}

// chaChaRand implements Rand on top of math/rand/v2's ChaCha8 source, which
// is the standard library's deterministic-on-demand, 256-bit-seedable CSPRNG
// stream. Two chaChaRands seeded with the same 32 bytes produce byte-for-byte
// identical sequences.
type chaChaRand struct {
	r *mrand.Rand
}

// NewRand returns a Rand seeded from a cryptographically random 256-bit
// value, suitable for production use.
func NewRand() Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand.Read only fails if the system entropy source
		// is broken, in which case there is nothing sensible left to
		// do but panic; there is no address-manager-level recovery.
		panic(err)
	}
	return NewSeededRand(seed)
}

// NewSeededRand returns a Rand deterministically derived from the given
// 256-bit seed. Used in deterministic mode and by tests that need
// reproducible replay.
func NewSeededRand(seed [32]byte) Rand {
	return &chaChaRand{r: mrand.New(mrand.NewChaCha8(seed))}
}

// RandBool implements Rand.
func (c *chaChaRand) RandBool() bool {
	return c.r.Uint64()&1 == 1
}

// RandRange implements Rand.
func (c *chaChaRand) RandRange(n uint32) uint32 {
	if n == 0 {
		panic("addrmgr: RandRange called with n == 0")
	}
	return uint32(c.r.Uint64N(uint64(n)))
}

// RandBits implements Rand.
func (c *chaChaRand) RandBits(b uint) uint64 {
	if b == 0 || b > 64 {
		panic("addrmgr: RandBits called with invalid bit count")
	}
	if b == 64 {
		return c.r.Uint64()
	}
	return c.r.Uint64() & ((uint64(1) << b) - 1)
}

// RandUint256 implements Rand.
func (c *chaChaRand) RandUint256() [32]byte {
	var out [32]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(out[i*8:], c.r.Uint64())
	}
	return out
}
