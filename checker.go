package addrmgr

// Check walks every entry and Stats record reachable from the table and
// verifies the invariants the rest of the package relies on: bucket
// placement matches the hasher, alias bookkeeping is internally consistent,
// per-service occupancy never exceeds NewBucketsPerAddress, tried services
// never have aliases, and the new/tried counters match reality. It returns
// the first violation found, or nil if the table is consistent.
//
// Check is O(entries) and is meant to be run probabilistically by Manager,
// not on every operation.
func (t *AddrTable) Check() error {
	if err := t.checkEntries(); err != nil {
		return err
	}
	if err := t.checkServices(); err != nil {
		return err
	}
	if err := t.checkCollisions(); err != nil {
		return err
	}
	return t.checkCounts()
}

func (t *AddrTable) checkEntries() error {
	for _, id := range t.index.AllEntries() {
		e := t.index.Get(id)
		if e == nil {
			return errInvariant("entry id vanished mid-walk")
		}

		var wantBucket, wantPos int
		if e.InTried {
			wantBucket = t.hasher.TriedBucket(e.Service)
			wantPos = t.hasher.Position(e.Service, false, wantBucket)
		} else {
			wantBucket = t.hasher.NewBucket(e.Service, e.Source)
			wantPos = t.hasher.Position(e.Service, true, wantBucket)
		}
		if e.Bucket != wantBucket || e.BucketPos != wantPos {
			return errInvariant("entry bucket placement does not match hasher")
		}

		slotID, occupied := t.index.AtSlot(e.InTried, e.Bucket, e.BucketPos)
		if !occupied || slotID != id {
			return errInvariant("entry missing from its own bucket slot")
		}

		if e.IsAlias() {
			if e.InTried {
				return errInvariant("alias entry present in tried table")
			}
			if _, ok := t.index.Canonical(e.Service); !ok {
				return errInvariant("alias entry has no canonical sibling")
			}
			continue
		}

		st := t.stats.Get(e.StatsRef)
		if st == nil {
			return errInvariant("canonical entry references missing stats record")
		}
		if st.BackRef != id {
			return errInvariant("stats record back-reference does not match owner")
		}
	}
	return nil
}

func (t *AddrTable) checkServices() error {
	for _, key := range t.index.AllServices() {
		ids := t.index.ServiceEntryIDs(key)
		if len(ids) == 0 {
			continue
		}
		canonical := t.index.Get(ids[0])
		if canonical == nil {
			return errInvariant("service entry list contains dangling id")
		}

		if canonical.InTried && len(ids) != 1 {
			return errInvariant("tried service has aliases")
		}
		if !canonical.InTried && len(ids) > NewBucketsPerAddress {
			return errInvariant("service exceeds NewBucketsPerAddress occupancy")
		}

		seen := make(map[bucketSlot]struct{}, len(ids))
		for _, id := range ids {
			e := t.index.Get(id)
			if e == nil {
				return errInvariant("service entry list contains dangling id")
			}
			slot := bucketSlot{e.InTried, e.Bucket, e.BucketPos}
			if _, dup := seen[slot]; dup {
				return errInvariant("service occupies the same slot twice")
			}
			seen[slot] = struct{}{}
		}
	}
	return nil
}

func (t *AddrTable) checkCollisions() error {
	for _, id := range t.collisions {
		e := t.index.Get(id)
		if e == nil {
			continue
		}
		if e.InTried {
			return errInvariant("collision set references an entry already in tried")
		}
	}
	return nil
}

func (t *AddrTable) checkCounts() error {
	// The index tracks its own counters incrementally; recompute them
	// independently from the entry set to catch drift.
	gotNew, gotTried := 0, 0
	for _, id := range t.index.AllEntries() {
		e := t.index.Get(id)
		if e == nil || e.IsAlias() {
			continue
		}
		if e.InTried {
			gotTried++
		} else {
			gotNew++
		}
	}
	if gotNew != t.index.CountNew() {
		return errInvariant("new-table counter drifted from entry set")
	}
	if gotTried != t.index.CountTried() {
		return errInvariant("tried-table counter drifted from entry set")
	}
	return nil
}
