package addrmgr

import "github.com/btcsuite/btcd/wire"

// bucketSlot identifies a unique (table, bucket, position) slot.
type bucketSlot struct {
	inTried bool
	bucket  int
	pos     int
}

// serviceEntries tracks every Entry for one service: its canonical entry
// (which owns the Stats) and the set of alias entries sharing that Stats.
// A tried-table service never has aliases.
type serviceEntries struct {
	canonical entryID
	aliases   map[entryID]struct{}
}

// Index is the dual-keyed container backing AddrTable: one view keyed by
// (service, is-alias), one keyed by (table, bucket, position). Both views
// are kept consistent by every mutator in this file; nothing outside this
// file mutates the maps directly.
type Index struct {
	nextID entryID

	entries map[entryID]*Entry

	// byService maps a service's address key to its canonical/alias set.
	byService map[string]*serviceEntries

	// byBucket maps a concrete slot to the entry occupying it.
	byBucket map[bucketSlot]entryID

	countNew   int
	countTried int
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		entries:   make(map[entryID]*Entry),
		byService: make(map[string]*serviceEntries),
		byBucket:  make(map[bucketSlot]entryID),
	}
}

// CountNew returns the number of canonical entries in the new table.
func (ix *Index) CountNew() int { return ix.countNew }

// CountTried returns the number of canonical entries in the tried table.
func (ix *Index) CountTried() int { return ix.countTried }

// Get returns the entry with the given id, or nil if it no longer exists.
func (ix *Index) Get(id entryID) *Entry {
	return ix.entries[id]
}

// Canonical returns the canonical entry id for a service, if any.
func (ix *Index) Canonical(service *wire.NetAddress) (entryID, bool) {
	se, ok := ix.byService[addrKey(service)]
	if !ok {
		return 0, false
	}
	return se.canonical, true
}

// AliasCount returns the number of aliases (not counting the canonical
// entry itself) a service currently has in the new table.
func (ix *Index) AliasCount(service *wire.NetAddress) int {
	se, ok := ix.byService[addrKey(service)]
	if !ok {
		return 0
	}
	return len(se.aliases)
}

// Aliases returns the ids of every alias entry for a service (not including
// the canonical entry).
func (ix *Index) Aliases(service *wire.NetAddress) []entryID {
	se, ok := ix.byService[addrKey(service)]
	if !ok {
		return nil
	}
	out := make([]entryID, 0, len(se.aliases))
	for id := range se.aliases {
		out = append(out, id)
	}
	return out
}

// AtSlot returns the id of the entry occupying a bucket slot, if any.
func (ix *Index) AtSlot(inTried bool, bucket, pos int) (entryID, bool) {
	id, ok := ix.byBucket[bucketSlot{inTried, bucket, pos}]
	return id, ok
}

// InsertCanonical inserts e as the canonical entry for its service at its
// current (Bucket, BucketPos). The slot must be free; the service must not
// already have a canonical entry.
func (ix *Index) InsertCanonical(e *Entry) entryID {
	key := addrKey(e.Service)
	if _, exists := ix.byService[key]; exists {
		panic("addrmgr: canonical entry already exists for service")
	}

	ix.nextID++
	id := ix.nextID
	ix.entries[id] = e
	ix.byService[key] = &serviceEntries{canonical: id, aliases: map[entryID]struct{}{}}
	ix.byBucket[bucketSlot{e.InTried, e.Bucket, e.BucketPos}] = id
	ix.bumpCount(e.InTried, 1)
	return id
}

// InsertAlias inserts e as an alias for an existing canonical service entry.
func (ix *Index) InsertAlias(e *Entry) entryID {
	key := addrKey(e.Service)
	se, ok := ix.byService[key]
	if !ok {
		panic("addrmgr: alias inserted with no canonical entry present")
	}

	ix.nextID++
	id := ix.nextID
	ix.entries[id] = e
	se.aliases[id] = struct{}{}
	ix.byBucket[bucketSlot{e.InTried, e.Bucket, e.BucketPos}] = id
	return id
}

// Erase removes an entry entirely: from the bucket view, from its service's
// alias/canonical bookkeeping, and from the entry store. It does not touch
// Stats; callers must separately release or reassign the Stats record when
// erasing a canonical entry.
func (ix *Index) Erase(id entryID) {
	e, ok := ix.entries[id]
	if !ok {
		return
	}

	delete(ix.byBucket, bucketSlot{e.InTried, e.Bucket, e.BucketPos})

	key := addrKey(e.Service)
	wasCanonical := false
	if se, ok := ix.byService[key]; ok {
		if se.canonical == id {
			wasCanonical = true
			if len(se.aliases) == 0 {
				delete(ix.byService, key)
			} else {
				// The caller is responsible for promoting an
				// alias to canonical before calling Erase on
				// a canonical entry that still has aliases.
				panic("addrmgr: erased canonical entry with aliases still present")
			}
		} else {
			delete(se.aliases, id)
		}
	}

	delete(ix.entries, id)
	if wasCanonical {
		ix.bumpCount(e.InTried, -1)
	}
}

// Relocate moves an existing entry to a new slot, updating the bucket view.
// The entry's Bucket/BucketPos/InTried fields are updated in place. The
// table membership counters are adjusted if InTried changes.
func (ix *Index) Relocate(id entryID, inTried bool, bucket, pos int) {
	e, ok := ix.entries[id]
	if !ok {
		return
	}

	delete(ix.byBucket, bucketSlot{e.InTried, e.Bucket, e.BucketPos})

	wasTried := e.InTried
	e.InTried = inTried
	e.Bucket = bucket
	e.BucketPos = pos

	ix.byBucket[bucketSlot{inTried, bucket, pos}] = id

	if wasTried != inTried && ix.isCanonical(id) {
		ix.bumpCount(wasTried, -1)
		ix.bumpCount(inTried, 1)
	}
}

// PromoteAlias makes the alias entry id the new canonical entry for its
// service, taking over the slot the prior canonical entry held in the
// service index (bucket slots are untouched; the caller handles those).
func (ix *Index) PromoteAlias(service *wire.NetAddress, id entryID) {
	se, ok := ix.byService[addrKey(service)]
	if !ok {
		panic("addrmgr: promote alias on unknown service")
	}
	delete(se.aliases, id)
	se.canonical = id
}

func (ix *Index) isCanonical(id entryID) bool {
	e, ok := ix.entries[id]
	if !ok {
		return false
	}
	se, ok := ix.byService[addrKey(e.Service)]
	return ok && se.canonical == id
}

func (ix *Index) bumpCount(inTried bool, delta int) {
	if inTried {
		ix.countTried += delta
	} else {
		ix.countNew += delta
	}
}

// AllServices returns the address key of every service known to the index,
// in arbitrary order. Used by the checker for a full sweep.
func (ix *Index) AllServices() []string {
	out := make([]string, 0, len(ix.byService))
	for k := range ix.byService {
		out = append(out, k)
	}
	return out
}

// ServiceEntryIDs returns the canonical id plus all alias ids for a service
// key, in no particular order.
func (ix *Index) ServiceEntryIDs(key string) []entryID {
	se, ok := ix.byService[key]
	if !ok {
		return nil
	}
	out := make([]entryID, 0, len(se.aliases)+1)
	out = append(out, se.canonical)
	for id := range se.aliases {
		out = append(out, id)
	}
	return out
}

// AllEntries returns every entry id currently stored, in arbitrary order.
func (ix *Index) AllEntries() []entryID {
	out := make([]entryID, 0, len(ix.entries))
	for id := range ix.entries {
		out = append(out, id)
	}
	return out
}
