package addrmgr

import "github.com/btcsuite/btcd/wire"

// Stats holds the mutable statistics shared by a service and all of its
// aliases in the new table. There is exactly one Stats per distinct
// service, regardless of how many (bucket, position) slots it occupies.
type Stats struct {
	// LastTry is the last time (unix seconds) any connection attempt was
	// made to this service, successful or not.
	LastTry int64

	// LastCountedAttempt is the last attempt time that was counted
	// toward Attempts. It exists so that attempts predating the most
	// recent success are not double counted.
	LastCountedAttempt int64

	// LastSuccess is the last time a connection attempt succeeded.
	LastSuccess int64

	// Attempts is the number of consecutive failed attempts since the
	// last success.
	Attempts int32

	// Time is the network-propagated freshness stamp carried by gossip
	// about this address, as opposed to anything locally observed.
	Time int64

	// Services is the bitset of services this peer has advertised
	// support for.
	Services wire.ServiceFlag

	// BackRef is the entryID of the canonical Entry that currently owns
	// this Stats record.
	BackRef entryID
}

// statsStore is the "statistics vector" of the package design: a random-
// access pool of Stats records, one per distinct service, referenced from
// Entry.StatsRef by statsID rather than by pointer.
type statsStore struct {
	next statsID
	m    map[statsID]*Stats
}

func newStatsStore() *statsStore {
	return &statsStore{m: make(map[statsID]*Stats)}
}

// Insert adds a new Stats record and returns its id.
func (s *statsStore) Insert(st *Stats) statsID {
	s.next++
	id := s.next
	s.m[id] = st
	return id
}

// Get returns the Stats for an id, or nil if unknown.
func (s *statsStore) Get(id statsID) *Stats {
	return s.m[id]
}

// Delete removes a Stats record.
func (s *statsStore) Delete(id statsID) {
	delete(s.m, id)
}

// Len returns the number of Stats records in the store.
func (s *statsStore) Len() int {
	return len(s.m)
}

// AllIDs returns every statsID currently stored, in arbitrary order.
func (s *statsStore) AllIDs() []statsID {
	out := make([]statsID, 0, len(s.m))
	for id := range s.m {
		out = append(out, id)
	}
	return out
}
