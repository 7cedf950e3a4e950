package addrmgr

import (
	"io"
	"sync"

	"github.com/btcsuite/btcd/wire"
)

// DefaultCheckRate is the check rate a new Manager starts with. The check
// rate controls how often Manager runs a full consistency check after a
// mutating operation: on average, one call out of every rate. A rate of 0
// (see SetCheckRate) disables checking entirely; callers doing so are expected to run
// Check explicitly from their own test suite instead.
const DefaultCheckRate = 2000

// Manager is the concurrency-safe facade over AddrTable: a single exclusive
// mutex around every public operation, with an occasional full consistency
// check layered on top so a corrupted invariant is caught close to its
// cause instead of surfacing as a confusing panic somewhere downstream.
type Manager struct {
	mu sync.Mutex

	table     *AddrTable
	checkRand Rand
	checkRate uint32
}

// NewManager returns a Manager over a fresh, empty AddrTable.
func NewManager(key [32]byte, group NetGroupManager, rnd Rand) *Manager {
	return &Manager{
		table:     NewAddrTable(key, group, rnd),
		checkRand: NewRand(),
		checkRate: DefaultCheckRate,
	}
}

// NewManagerFromDecode loads a Manager's table from a stream written by
// Manager.Save (or AddrTable.Encode directly).
func NewManagerFromDecode(r io.Reader, group NetGroupManager, rnd Rand, now int64) (*Manager, error) {
	tbl, err := DecodeAddrTable(r, group, rnd, now)
	if err != nil {
		return nil, err
	}
	return &Manager{table: tbl, checkRand: NewRand(), checkRate: DefaultCheckRate}, nil
}

// SetCheckRate changes how often Manager self-checks after a mutation.
// A rate of 0 disables self-checking.
func (m *Manager) SetCheckRate(rate uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkRate = rate
}

// Save writes the table's current state to w.
func (m *Manager) Save(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Encode(w)
}

func (m *Manager) maybeCheck() {
	if m.checkRate == 0 {
		return
	}
	if m.checkRand.RandRange(m.checkRate) != 0 {
		return
	}
	if err := m.table.Check(); err != nil {
		log.Criticalf("addrmgr: consistency check failed: %v", err)
		panic(err)
	}
}

// Add is the locked equivalent of AddrTable.Add.
func (m *Manager) Add(service, source *wire.NetAddress, now, timePenalty int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ok := m.table.Add(service, source, now, timePenalty)
	m.maybeCheck()
	return ok
}

// MarkGood is the locked equivalent of AddrTable.MarkGood.
func (m *Manager) MarkGood(service *wire.NetAddress, now int64, testBeforeEvict bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ok := m.table.MarkGood(service, now, testBeforeEvict)
	m.maybeCheck()
	return ok
}

// Attempt is the locked equivalent of AddrTable.Attempt.
func (m *Manager) Attempt(service *wire.NetAddress, countFailure bool, now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table.Attempt(service, countFailure, now)
	m.maybeCheck()
}

// Connected is the locked equivalent of AddrTable.Connected.
func (m *Manager) Connected(service *wire.NetAddress, now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table.Connected(service, now)
	m.maybeCheck()
}

// SetServices is the locked equivalent of AddrTable.SetServices.
func (m *Manager) SetServices(service *wire.NetAddress, services wire.ServiceFlag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table.SetServices(service, services)
	m.maybeCheck()
}

// Select is the locked equivalent of AddrTable.Select.
func (m *Manager) Select(now int64, newOnly bool) (*wire.NetAddress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Select(now, newOnly)
}

// GetAddr is the locked equivalent of AddrTable.GetAddr.
func (m *Manager) GetAddr(now int64, maxCount, maxPct int, filter func(*wire.NetAddress) bool) []*wire.NetAddress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.GetAddr(now, maxCount, maxPct, filter)
}

// ResolveCollisions is the locked equivalent of AddrTable.ResolveCollisions.
func (m *Manager) ResolveCollisions(now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table.ResolveCollisions(now)
	m.maybeCheck()
}

// SelectTriedCollision is the locked equivalent of AddrTable.SelectTriedCollision.
func (m *Manager) SelectTriedCollision() (candidate, occupant *wire.NetAddress, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.SelectTriedCollision()
}

// Find is the locked equivalent of AddrTable.Find.
func (m *Manager) Find(service *wire.NetAddress) FindResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Find(service)
}

// Size is the locked equivalent of AddrTable.Size.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Size()
}

// CountNew is the locked equivalent of AddrTable.CountNew.
func (m *Manager) CountNew() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.CountNew()
}

// CountTried is the locked equivalent of AddrTable.CountTried.
func (m *Manager) CountTried() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.CountTried()
}

// Check runs a full consistency check outside the probabilistic schedule,
// useful from tests and from an operator-triggered diagnostic command.
func (m *Manager) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Check()
}
