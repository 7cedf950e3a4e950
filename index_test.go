package addrmgr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexInsertAndLookup(t *testing.T) {
	ix := NewIndex()
	svc := mustAddr(t, "8.8.8.8", 8333)
	src := mustAddr(t, "1.2.3.4", 8333)

	e := &Entry{Service: svc, Source: src, Bucket: 1, BucketPos: 2, StatsRef: 1}
	id := ix.InsertCanonical(e)

	require.Equal(t, 1, ix.CountNew())
	canon, ok := ix.Canonical(svc)
	require.True(t, ok)
	require.Equal(t, id, canon)

	got, ok := ix.AtSlot(false, 1, 2)
	require.True(t, ok)
	require.Equal(t, id, got)
}

func TestIndexAliasLifecycle(t *testing.T) {
	ix := NewIndex()
	svc := mustAddr(t, "8.8.8.8", 8333)
	src1 := mustAddr(t, "1.2.3.4", 8333)
	src2 := mustAddr(t, "5.6.7.8", 8333)

	canonID := ix.InsertCanonical(&Entry{Service: svc, Source: src1, Bucket: 1, BucketPos: 1, StatsRef: 7})
	aliasID := ix.InsertAlias(&Entry{Service: svc, Source: src2, Bucket: 2, BucketPos: 9})

	require.Equal(t, 1, ix.AliasCount(svc))
	require.ElementsMatch(t, []entryID{aliasID}, ix.Aliases(svc))
	require.Equal(t, 1, ix.CountNew(), "aliases do not count toward the new-table size")

	// Promoting the alias should make it the new canonical entry without
	// touching bucket placement bookkeeping (the caller does that).
	ix.PromoteAlias(svc, aliasID)
	canon, ok := ix.Canonical(svc)
	require.True(t, ok)
	require.Equal(t, aliasID, canon)
	require.Empty(t, ix.Aliases(svc))

	// The old canonical id is now an orphan; erasing it should not panic
	// since it is no longer tracked as canonical or alias.
	ix.Erase(canonID)
	require.Nil(t, ix.Get(canonID))
}

func TestIndexEraseCanonicalWithAliasesPanics(t *testing.T) {
	ix := NewIndex()
	svc := mustAddr(t, "8.8.8.8", 8333)
	src := mustAddr(t, "1.2.3.4", 8333)

	canonID := ix.InsertCanonical(&Entry{Service: svc, Source: src, Bucket: 1, BucketPos: 1, StatsRef: 1})
	ix.InsertAlias(&Entry{Service: svc, Source: src, Bucket: 2, BucketPos: 2})

	require.Panics(t, func() { ix.Erase(canonID) })
}

func TestIndexRelocateUpdatesCounters(t *testing.T) {
	ix := NewIndex()
	svc := mustAddr(t, "8.8.8.8", 8333)
	src := mustAddr(t, "1.2.3.4", 8333)

	id := ix.InsertCanonical(&Entry{Service: svc, Source: src, Bucket: 1, BucketPos: 1, StatsRef: 1})
	require.Equal(t, 1, ix.CountNew())
	require.Equal(t, 0, ix.CountTried())

	ix.Relocate(id, true, 5, 6)
	require.Equal(t, 0, ix.CountNew())
	require.Equal(t, 1, ix.CountTried())

	_, ok := ix.AtSlot(false, 1, 1)
	require.False(t, ok, "old slot should be vacated")
	got, ok := ix.AtSlot(true, 5, 6)
	require.True(t, ok)
	require.Equal(t, id, got)
}
