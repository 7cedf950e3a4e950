package addrmgr

import (
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func mustAddr(t *testing.T, ip string, port uint16) *wire.NetAddress {
	t.Helper()
	parsed := net.ParseIP(ip)
	require.NotNil(t, parsed, "invalid test IP %q", ip)
	return &wire.NetAddress{
		Timestamp: time.Unix(1600000000, 0),
		Services:  wire.SFNodeNetwork,
		IP:        parsed,
		Port:      port,
	}
}

func TestBucketHasherDeterministic(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	h1 := NewBucketHasher(key, IPGroupManager{})
	h2 := NewBucketHasher(key, IPGroupManager{})

	svc := mustAddr(t, "8.8.8.8", 8333)
	src := mustAddr(t, "1.2.3.4", 8333)

	require.Equal(t, h1.NewBucket(svc, src), h2.NewBucket(svc, src))
	require.Equal(t, h1.TriedBucket(svc), h2.TriedBucket(svc))

	bucket := h1.TriedBucket(svc)
	require.Equal(t, h1.Position(svc, false, bucket), h2.Position(svc, false, bucket))
}

func TestBucketHasherDifferentKeysDiverge(t *testing.T) {
	var key1, key2 [32]byte
	key2[0] = 1

	h1 := NewBucketHasher(key1, IPGroupManager{})
	h2 := NewBucketHasher(key2, IPGroupManager{})

	svc := mustAddr(t, "8.8.8.8", 8333)

	// Not a mathematical certainty, but collision odds across two
	// independent 256-bucket hashes are low enough that this is a
	// reliable regression check against an accidentally key-independent
	// hash.
	same := h1.TriedBucket(svc) == h2.TriedBucket(svc)
	require.False(t, same, "two different keys produced the same tried bucket")
}

func TestBucketRangesInBounds(t *testing.T) {
	var key [32]byte
	h := NewBucketHasher(key, IPGroupManager{})

	svc := mustAddr(t, "203.0.113.99", 8333)
	src := mustAddr(t, "198.51.100.7", 8333)

	tried := h.TriedBucket(svc)
	require.GreaterOrEqual(t, tried, 0)
	require.Less(t, tried, TriedBucketCount)

	newB := h.NewBucket(svc, src)
	require.GreaterOrEqual(t, newB, 0)
	require.Less(t, newB, NewBucketCount)

	pos := h.Position(svc, true, newB)
	require.GreaterOrEqual(t, pos, 0)
	require.Less(t, pos, BucketSize)
}
