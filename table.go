package addrmgr

import (
	"math"

	"github.com/btcsuite/btcd/wire"
)

const (
	// freshnessGraceOnline is the grace interval applied when refreshing
	// an address's freshness stamp if the gossiped timestamp indicates
	// the peer is currently online.
	freshnessGraceOnline = 60 * 60

	// freshnessGraceOffline is the grace interval applied otherwise.
	freshnessGraceOffline = 24 * 60 * 60

	// onlineWindow bounds how recent a gossiped timestamp must be for
	// its subject to be considered "currently online".
	onlineWindow = 24 * 60 * 60

	// connectedRefreshWindow is the minimum age of Stats.Time before
	// Connected will bump it.
	connectedRefreshWindow = 20 * 60

	terribleFreshTry   = 60
	terribleFutureTime = 10 * 60
	terribleMaxAge     = 30 * 24 * 60 * 60
	terribleMinRetries = 3
	terribleBadDays    = 7 * 24 * 60 * 60
	terribleMaxRetries = 10

	chanceRecentTryWindow = 10 * 60
	chanceRecentTryFactor = 0.01
	chanceAttemptBase     = 0.66
	chanceAttemptCap      = 8

	collisionSetCap       = 10
	collisionRecentSucc   = 4 * 60 * 60
	collisionRecentTry    = 4 * 60 * 60
	collisionMinTryAge    = 60
	collisionWaitTimeout  = 40 * 60

	selectionRejectGrowth = 1.2
)

// AddrTable is the new/tried state machine: insertion, promotion, eviction,
// collision resolution, and the selection/enumeration samplers. It is not
// safe for concurrent use by itself; Manager supplies the locking.
type AddrTable struct {
	hasher *BucketHasher
	rand   Rand
	group  NetGroupManager

	index *Index
	stats *statsStore

	// collisions holds canonical entry ids awaiting test-before-evict
	// promotion into the tried table, in arrival order, bounded to
	// collisionSetCap entries.
	collisions []entryID

	// lastGood is the most recent time (unix seconds) any address was
	// marked good, used by Attempt to avoid double counting failures
	// that predate our most recent successful connection.
	lastGood int64
}

// NewAddrTable returns an empty AddrTable using the given bucket key,
// network-group oracle, and random source.
func NewAddrTable(key [32]byte, group NetGroupManager, rnd Rand) *AddrTable {
	return &AddrTable{
		hasher: NewBucketHasher(key, group),
		rand:   rnd,
		group:  group,
		index:  NewIndex(),
		stats:  newStatsStore(),
	}
}

// Key returns the table's bucket key.
func (t *AddrTable) Key() [32]byte {
	return t.hasher.Key()
}

// Size returns the total number of distinct services known to the table.
func (t *AddrTable) Size() int {
	return t.index.CountNew() + t.index.CountTried()
}

// CountNew returns the number of canonical entries in the new table.
func (t *AddrTable) CountNew() int { return t.index.CountNew() }

// CountTried returns the number of canonical entries in the tried table.
func (t *AddrTable) CountTried() int { return t.index.CountTried() }

// FindResult describes what Find discovered about a service.
type FindResult struct {
	Found        bool
	InTried      bool
	Multiplicity int
	Bucket       int
	BucketPos    int
}

// Find reports the current placement of a service, if known.
func (t *AddrTable) Find(service *wire.NetAddress) FindResult {
	id, ok := t.index.Canonical(service)
	if !ok {
		return FindResult{}
	}
	e := t.index.Get(id)
	return FindResult{
		Found:        true,
		InTried:      e.InTried,
		Multiplicity: 1 + t.index.AliasCount(service),
		Bucket:       e.Bucket,
		BucketPos:    e.BucketPos,
	}
}

// statsForEntry resolves the Stats record backing an entry, following the
// alias-to-canonical link if necessary.
func (t *AddrTable) statsForEntry(e *Entry) *Stats {
	ref := e.StatsRef
	if ref == noStats {
		canonID, ok := t.index.Canonical(e.Service)
		if !ok {
			return nil
		}
		ref = t.index.Get(canonID).StatsRef
	}
	return t.stats.Get(ref)
}

// isTerrible reports whether stat is bad enough to be dropped or silently
// overwritten. A connection attempt in the last minute always protects the
// entry from this check, even if everything else about it looks stale.
func isTerrible(st *Stats, now int64) bool {
	if st.LastTry >= now-terribleFreshTry {
		return false
	}
	if st.Time > now+terribleFutureTime {
		return true
	}
	if st.Time == 0 {
		return true
	}
	if now-st.Time > terribleMaxAge {
		return true
	}
	if st.LastSuccess == 0 && st.Attempts >= terribleMinRetries {
		return true
	}
	if now-st.LastSuccess > terribleBadDays && st.Attempts >= terribleMaxRetries {
		return true
	}
	return false
}

// chance returns a weight in (0, 1] proportional to how preferable an entry
// is to select: pristine, infrequently retried entries score close to 1,
// anything tried very recently or repeatedly failed scores much lower.
func chance(st *Stats, now int64) float64 {
	c := 1.0
	if now-st.LastTry < chanceRecentTryWindow {
		c *= chanceRecentTryFactor
	}
	attempts := st.Attempts
	if attempts > chanceAttemptCap {
		attempts = chanceAttemptCap
	}
	c *= math.Pow(chanceAttemptBase, float64(attempts))
	return c
}

// Add records that service was learned about from source at time now.
// timePenalty is subtracted from the gossiped timestamp to model the trust
// we place in the relaying peer. It returns true iff a new slot was filled
// in the new table.
func (t *AddrTable) Add(service, source *wire.NetAddress, now, timePenalty int64) bool {
	if !IsRoutable(service) {
		return false
	}
	if addrKey(service) == addrKey(source) {
		timePenalty = 0
	}

	canonID, found := t.index.Canonical(service)

	if found {
		e := t.index.Get(canonID)
		st := t.stats.Get(e.StatsRef)

		gossipTime := service.Timestamp.Unix()
		onlineNow := now-gossipTime < onlineWindow
		grace := int64(freshnessGraceOffline)
		if onlineNow {
			grace = freshnessGraceOnline
		}

		refreshedTime := false
		if !e.InTried && st.Time < gossipTime-grace {
			st.Time = maxInt64(0, gossipTime-timePenalty)
			refreshedTime = true
		}

		refreshedServices := st.Services&service.Services != service.Services
		if refreshedServices {
			st.Services |= service.Services
		}

		if e.InTried || !(refreshedTime || refreshedServices) {
			return false
		}

		aliasCount := t.index.AliasCount(service)
		if aliasCount+1 >= NewBucketsPerAddress {
			return false
		}

		if t.rand.RandRange(uint32(1)<<uint(aliasCount)) != 0 {
			return false
		}

		return t.placeAliasInNew(service, source, canonID, now)
	}

	bucket := t.hasher.NewBucket(service, source)
	pos := t.hasher.Position(service, true, bucket)

	occupantID, occupied := t.index.AtSlot(false, bucket, pos)
	if occupied {
		occ := t.index.Get(occupantID)
		occStats := t.statsForEntry(occ)
		occHasAliases := t.index.AliasCount(occ.Service) > 0
		if !isTerrible(occStats, now) && !occHasAliases {
			return false
		}
		t.removeEntry(occupantID)
	}

	st := &Stats{
		Time:     maxInt64(0, service.Timestamp.Unix()-timePenalty),
		Services: service.Services,
	}
	statsRef := t.stats.Insert(st)
	newEntry := &Entry{Service: service, Source: source, Bucket: bucket, BucketPos: pos, StatsRef: statsRef}
	newID := t.index.InsertCanonical(newEntry)
	st.BackRef = newID
	return true
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// placeAliasInNew computes the target new-bucket slot for (service, source)
// and resolves any collision there, inserting service as an alias of its
// existing canonical entry canonID.
func (t *AddrTable) placeAliasInNew(service, source *wire.NetAddress, canonID entryID, now int64) bool {
	bucket := t.hasher.NewBucket(service, source)
	pos := t.hasher.Position(service, true, bucket)

	occupantID, occupied := t.index.AtSlot(false, bucket, pos)
	if occupied {
		occ := t.index.Get(occupantID)
		switch {
		case addrKey(occ.Service) != addrKey(service):
			occStats := t.statsForEntry(occ)
			if !isTerrible(occStats, now) {
				return false
			}
			t.removeEntry(occupantID)
		case occupantID == canonID:
			// Re-placing the exact same entry at the slot it
			// already occupies: nothing to do.
			return false
		default:
			// Another alias of the same service already sits
			// here; it is replaced by the incoming occurrence.
			t.index.Erase(occupantID)
		}
	}

	alias := &Entry{Service: service, Source: source, Bucket: bucket, BucketPos: pos, StatsRef: noStats}
	t.index.InsertAlias(alias)
	return true
}

// removeEntry deletes a single entry, promoting an alias to canonical (and
// transferring Stats ownership) if the removed entry was canonical and had
// aliases remaining.
func (t *AddrTable) removeEntry(id entryID) {
	e := t.index.Get(id)
	if e == nil {
		return
	}

	canonID, _ := t.index.Canonical(e.Service)
	if canonID != id {
		t.index.Erase(id)
		return
	}

	aliases := t.index.Aliases(e.Service)
	if len(aliases) == 0 {
		t.stats.Delete(e.StatsRef)
		t.index.Erase(id)
		return
	}

	promote := aliases[0]
	promEntry := t.index.Get(promote)
	promEntry.StatsRef = e.StatsRef
	st := t.stats.Get(e.StatsRef)
	st.BackRef = promote
	t.index.PromoteAlias(e.Service, promote)
	t.index.Erase(id)
}

// removeService deletes every entry for a service: all aliases and the
// canonical entry, along with its Stats record.
func (t *AddrTable) removeService(service *wire.NetAddress) {
	canonID, ok := t.index.Canonical(service)
	if !ok {
		return
	}
	for _, aid := range t.index.Aliases(service) {
		t.index.Erase(aid)
	}
	e := t.index.Get(canonID)
	t.stats.Delete(e.StatsRef)
	t.index.Erase(canonID)
}

// MarkGood records a successful connection to service. If service is not in
// the tried table yet, it is promoted there (possibly evicting a collision
// into the collision set, if testBeforeEvict is set). Returns true iff
// service actually changed table membership as a result of this call.
func (t *AddrTable) MarkGood(service *wire.NetAddress, now int64, testBeforeEvict bool) bool {
	t.lastGood = now

	canonID, ok := t.index.Canonical(service)
	if !ok {
		return false
	}
	e := t.index.Get(canonID)
	st := t.stats.Get(e.StatsRef)
	st.LastSuccess, st.LastTry, st.Attempts = now, now, 0

	if e.InTried {
		return false
	}

	bucket := t.hasher.TriedBucket(service)
	pos := t.hasher.Position(service, false, bucket)
	_, occupied := t.index.AtSlot(true, bucket, pos)
	if !occupied {
		t.makeTried(canonID)
		return true
	}

	if testBeforeEvict {
		for _, id := range t.collisions {
			if id == canonID {
				return false
			}
		}
		if len(t.collisions) >= collisionSetCap {
			return false
		}
		t.collisions = append(t.collisions, canonID)
		return false
	}

	t.makeTried(canonID)
	return true
}

// makeTried promotes the canonical entry id into the tried table, evicting
// (and possibly bouncing back to new, or dropping) whatever currently
// occupies its target tried slot.
func (t *AddrTable) makeTried(id entryID) {
	e := t.index.Get(id)
	service := e.Service

	for _, aid := range t.index.Aliases(service) {
		t.index.Erase(aid)
	}

	bucket := t.hasher.TriedBucket(service)
	pos := t.hasher.Position(service, false, bucket)

	occupantID, occupied := t.index.AtSlot(true, bucket, pos)
	if occupied && occupantID != id {
		occ := t.index.Get(occupantID)
		occService, occSource, occStatsRef := occ.Service, occ.Source, occ.StatsRef
		t.index.Erase(occupantID)

		newBucket := t.hasher.NewBucket(occService, occSource)
		newPos := t.hasher.Position(occService, true, newBucket)

		if _, isOccupied := t.index.AtSlot(false, newBucket, newPos); isOccupied {
			// Cascading eviction is bounded to one step: the
			// bounced entry is simply dropped.
			t.stats.Delete(occStatsRef)
		} else if _, hasCanon := t.index.Canonical(occService); hasCanon {
			t.stats.Delete(occStatsRef)
			alias := &Entry{
				Service: occService, Source: occSource,
				Bucket: newBucket, BucketPos: newPos, StatsRef: noStats,
			}
			t.index.InsertAlias(alias)
		} else {
			newEntry := &Entry{
				Service: occService, Source: occSource,
				Bucket: newBucket, BucketPos: newPos, StatsRef: occStatsRef,
			}
			newID := t.index.InsertCanonical(newEntry)
			t.stats.Get(occStatsRef).BackRef = newID
		}
	}

	t.index.Relocate(id, true, bucket, pos)
}

// Attempt records a connection attempt to service. If countFailure is set
// and the last counted attempt predates the table's last successful
// connection (lastGood), the failure counter is incremented.
func (t *AddrTable) Attempt(service *wire.NetAddress, countFailure bool, now int64) {
	canonID, ok := t.index.Canonical(service)
	if !ok {
		return
	}
	e := t.index.Get(canonID)
	st := t.stats.Get(e.StatsRef)
	st.LastTry = now
	if countFailure && st.LastCountedAttempt < t.lastGood {
		st.LastCountedAttempt = now
		st.Attempts++
	}
}

// Connected refreshes service's freshness stamp to now, provided it has not
// already been refreshed in the last 20 minutes.
func (t *AddrTable) Connected(service *wire.NetAddress, now int64) {
	canonID, ok := t.index.Canonical(service)
	if !ok {
		return
	}
	e := t.index.Get(canonID)
	st := t.stats.Get(e.StatsRef)
	if now-st.Time > connectedRefreshWindow {
		st.Time = now
	}
}

// SetServices overwrites the advertised service bits for service.
func (t *AddrTable) SetServices(service *wire.NetAddress, services wire.ServiceFlag) {
	canonID, ok := t.index.Canonical(service)
	if !ok {
		return
	}
	e := t.index.Get(canonID)
	t.stats.Get(e.StatsRef).Services = services
}

// floatFrom64 derives a float64 in [0, 1) from 53 random bits, matching the
// precision of a float64 mantissa.
func floatFrom64(r Rand) float64 {
	return float64(r.RandBits(53)) / float64(uint64(1)<<53)
}

// Select draws one entry at random, biased toward high-chance entries via a
// Metropolis-style rejection sampler: a uniformly random bucket and starting
// position are chosen, the bucket is scanned circularly for an occupant, and
// that occupant is accepted with probability chance*factor, where factor
// starts at 1 and grows by 1.2x on every rejection. newOnly forces selection
// from the new table; otherwise new vs. tried is chosen with equal
// probability (or forced to new if tried is empty).
func (t *AddrTable) Select(now int64, newOnly bool) (*wire.NetAddress, bool) {
	if t.Size() == 0 {
		return nil, false
	}
	if newOnly && t.index.CountNew() == 0 {
		return nil, false
	}

	tried := !newOnly && t.index.CountTried() > 0 &&
		(t.index.CountNew() == 0 || t.rand.RandBool())

	bucketCount := NewBucketCount
	if tried {
		bucketCount = TriedBucketCount
	}

	factor := 1.0
	for {
		bucket := int(t.rand.RandRange(uint32(bucketCount)))
		start := int(t.rand.RandRange(uint32(BucketSize)))

		var (
			id    entryID
			found bool
		)
		for i := 0; i < BucketSize; i++ {
			pos := (start + i) % BucketSize
			if candidate, ok := t.index.AtSlot(tried, bucket, pos); ok {
				id, found = candidate, true
				break
			}
		}
		if !found {
			continue
		}

		e := t.index.Get(id)
		st := t.statsForEntry(e)

		if floatFrom64(t.rand) < chance(st, now)*factor {
			return e.Service, true
		}
		factor *= selectionRejectGrowth
	}
}

// GetAddr draws up to min(maxCount, maxPct*size/100) distinct services via
// Fisher-Yates, in random order, skipping any that are terrible or excluded
// by filter.
func (t *AddrTable) GetAddr(now int64, maxCount, maxPct int, filter func(*wire.NetAddress) bool) []*wire.NetAddress {
	ids := t.stats.AllIDs()
	total := len(ids)
	if total == 0 || maxCount <= 0 {
		return nil
	}

	n := maxCount
	if pctN := maxPct * total / 100; pctN < n {
		n = pctN
	}
	if n > total {
		n = total
	}
	if n <= 0 {
		return nil
	}

	for i := 0; i < n; i++ {
		j := i + int(t.rand.RandRange(uint32(total-i)))
		ids[i], ids[j] = ids[j], ids[i]
	}

	out := make([]*wire.NetAddress, 0, n)
	for i := 0; i < n; i++ {
		st := t.stats.Get(ids[i])
		e := t.index.Get(st.BackRef)
		if e == nil {
			continue
		}
		if filter != nil && filter(e.Service) {
			continue
		}
		if isTerrible(st, now) {
			continue
		}
		out = append(out, e.Service)
	}
	return out
}

// ResolveCollisions walks the collision set, promoting, abandoning, or
// re-queueing each candidate per the test-before-evict discipline.
func (t *AddrTable) ResolveCollisions(now int64) {
	remaining := make([]entryID, 0, len(t.collisions))

	for _, id := range t.collisions {
		e := t.index.Get(id)
		if e == nil {
			continue
		}

		bucket := t.hasher.TriedBucket(e.Service)
		pos := t.hasher.Position(e.Service, false, bucket)
		occupantID, occupied := t.index.AtSlot(true, bucket, pos)
		if !occupied {
			t.promote(id)
			continue
		}

		occ := t.index.Get(occupantID)
		occStats := t.statsForEntry(occ)

		switch {
		case now-occStats.LastSuccess < collisionRecentSucc:
			// Occupant is healthy; abandon the candidate.

		case now-occStats.LastTry < collisionRecentTry &&
			now-occStats.LastTry >= collisionMinTryAge:
			t.promote(id)

		default:
			candStats := t.statsForEntry(e)
			staleOccupant := now-occStats.LastTry >= collisionRecentTry
			if staleOccupant && now-candStats.LastTry > collisionWaitTimeout {
				t.promote(id)
			} else {
				remaining = append(remaining, id)
			}
		}
	}

	t.collisions = remaining
}

func (t *AddrTable) promote(id entryID) {
	e := t.index.Get(id)
	if e == nil || e.InTried {
		return
	}
	t.makeTried(id)
}

// SelectTriedCollision returns a candidate currently waiting in the
// collision set along with the occupant it would displace, for caller-
// driven probing of which of the two is actually still reachable.
func (t *AddrTable) SelectTriedCollision() (candidate, occupant *wire.NetAddress, ok bool) {
	for _, id := range t.collisions {
		e := t.index.Get(id)
		if e == nil {
			continue
		}
		bucket := t.hasher.TriedBucket(e.Service)
		pos := t.hasher.Position(e.Service, false, bucket)
		occID, occupied := t.index.AtSlot(true, bucket, pos)
		if !occupied {
			continue
		}
		occ := t.index.Get(occID)
		return e.Service, occ.Service, true
	}
	return nil, nil, false
}
