package addrmgr

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Fixed sizing constants for the bucketing scheme. These are load-bearing
// for the on-disk format and for the diversity guarantees described in the
// package doc; they must never change without a format version bump.
const (
	// TriedBucketCount is the number of buckets tried addresses are
	// spread over.
	TriedBucketCount = 256

	// NewBucketCount is the number of buckets new addresses are spread
	// over.
	NewBucketCount = 1024

	// BucketSize is the maximum number of addresses in a single bucket,
	// for either table.
	BucketSize = 64

	// TriedBucketsPerGroup is the number of tried buckets a single
	// network group's addresses are spread over.
	TriedBucketsPerGroup = 8

	// NewBucketsPerSourceGroup is the number of new buckets a single
	// source's network group can place addresses into.
	NewBucketsPerSourceGroup = 64

	// NewBucketsPerAddress is the maximum number of new-table slots a
	// single address may simultaneously occupy (one canonical entry plus
	// aliases).
	NewBucketsPerAddress = 8
)

// BucketHasher computes bucket and in-bucket-position assignments from a
// secret key. It has no mutable state beyond the key, which is fixed for the
// lifetime of a manager (or restored verbatim from a saved stream).
type BucketHasher struct {
	key   [32]byte
	group NetGroupManager
}

// NewBucketHasher returns a BucketHasher using the given secret key and
// network-group oracle.
func NewBucketHasher(key [32]byte, group NetGroupManager) *BucketHasher {
	return &BucketHasher{key: key, group: group}
}

// Key returns the hasher's secret key.
func (h *BucketHasher) Key() [32]byte {
	return h.key
}

// keyedHash64 hashes key followed by the concatenation of parts with
// double-SHA256 and returns the low 64 bits, little-endian, as bitcoind's
// addrman does.
func keyedHash64(key [32]byte, parts ...[]byte) uint64 {
	total := len(key)
	for _, p := range parts {
		total += len(p)
	}
	data := make([]byte, 0, total)
	data = append(data, key[:]...)
	for _, p := range parts {
		data = append(data, p...)
	}
	sum := chainhash.DoubleHashB(data)
	return binary.LittleEndian.Uint64(sum[:8])
}

func le64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

// serviceBytes returns a canonical byte encoding of a service/source address
// for hashing purposes: its 16-byte (v4-mapped) IP representation followed
// by its big-endian port.
func serviceBytes(addr *wire.NetAddress) []byte {
	ip := addr.IP.To16()
	if ip == nil {
		ip = make([]byte, 16)
	}
	out := make([]byte, 0, 18)
	out = append(out, ip...)
	out = append(out, byte(addr.Port>>8), byte(addr.Port))
	return out
}

// TriedBucket returns the tried-table bucket a service hashes to.
func (h *BucketHasher) TriedBucket(service *wire.NetAddress) int {
	inner := keyedHash64(h.key, serviceBytes(service)) % TriedBucketsPerGroup
	group := h.group.GroupKey(service)
	outer := keyedHash64(h.key, group, le64(inner))
	return int(outer % TriedBucketCount)
}

// NewBucket returns the new-table bucket a (service, source) pair hashes to.
func (h *BucketHasher) NewBucket(service, source *wire.NetAddress) int {
	serviceGroup := h.group.GroupKey(service)
	sourceGroup := h.group.GroupKey(source)

	inner := keyedHash64(h.key, serviceGroup, sourceGroup) % NewBucketsPerSourceGroup
	outer := keyedHash64(h.key, sourceGroup, le64(inner))
	return int(outer % NewBucketCount)
}

// Position returns the in-bucket slot a service hashes to within a bucket of
// either table.
func (h *BucketHasher) Position(service *wire.NetAddress, isNew bool, bucket int) int {
	tag := byte('K')
	if isNew {
		tag = 'N'
	}
	var bucketBytes [8]byte
	binary.LittleEndian.PutUint64(bucketBytes[:], uint64(bucket))

	v := keyedHash64(h.key, []byte{tag}, bucketBytes[:], serviceBytes(service))
	return int(v % BucketSize)
}
