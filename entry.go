package addrmgr

import (
	"strconv"

	"github.com/btcsuite/btcd/wire"
)

// entryID stably identifies an Entry for the lifetime of the process. It is
// never reused, so a stale reference (e.g. one held in the tried-collision
// set) can always be checked against the index for continued existence.
type entryID uint64

// statsID stably identifies a Stats record, independent of which Entry
// currently owns it. Ownership changes hands (see removeEntry) without the
// statsID changing, since callers may be holding on to it.
type statsID uint64

// noStats is the sentinel stored in Entry.StatsRef for alias entries, which
// share their canonical sibling's Stats rather than owning one.
const noStats statsID = 0

// Entry is one record per (service, alias-slot) pair held by the index.
type Entry struct {
	// Service is the peer endpoint this entry describes.
	Service *wire.NetAddress

	// Source is the endpoint we first learned Service from. It is only
	// meaningful for entries in the new table, where it participates in
	// bucket placement.
	Source *wire.NetAddress

	// InTried is true if this entry lives in the tried table.
	InTried bool

	// Bucket and BucketPos give this entry's current slot. They are
	// recomputed by the hasher any time the fields that feed into them
	// change.
	Bucket    int
	BucketPos int

	// StatsRef indexes into the statistics store, or is noStats if this
	// entry is an alias sharing another entry's Stats.
	StatsRef statsID
}

// IsAlias reports whether this entry is an alias of some canonical entry for
// the same service.
func (e *Entry) IsAlias() bool {
	return e.StatsRef == noStats
}

// addrKey returns a canonical string key for an address, used as the
// ByAddress index key. Tor addresses are keyed by their OnionCat IPv6 form;
// the .onion representation is not recovered from it.
func addrKey(na *wire.NetAddress) string {
	host := ipString(na)
	port := strconv.FormatUint(uint64(na.Port), 10)
	return host + "|" + port
}

func ipString(na *wire.NetAddress) string {
	return na.IP.String()
}
