package addrmgr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckPassesOnFreshTable(t *testing.T) {
	tbl := newTestTable(t, 30)
	svc := mustAddr(t, "8.8.8.8", 8333)
	src := mustAddr(t, "1.1.1.1", 8333)
	require.True(t, tbl.Add(svc, src, baseTime, 0))
	require.True(t, tbl.MarkGood(svc, baseTime, false))
	require.NoError(t, tbl.Check())
}

func TestCheckDetectsBucketPlacementTamper(t *testing.T) {
	tbl := newTestTable(t, 31)
	svc := mustAddr(t, "8.8.8.8", 8333)
	src := mustAddr(t, "1.1.1.1", 8333)
	require.True(t, tbl.Add(svc, src, baseTime, 0))

	id, _ := tbl.index.Canonical(svc)
	e := tbl.index.Get(id)
	e.BucketPos = (e.BucketPos + 1) % BucketSize

	err := tbl.Check()
	require.Error(t, err)
	var addrErr *Error
	require.ErrorAs(t, err, &addrErr)
	require.Equal(t, ErrInvariant, addrErr.Code)
}

func TestCheckDetectsAliasInTried(t *testing.T) {
	tbl := newTestTable(t, 32)
	svc := mustAddr(t, "8.8.8.8", 8333)
	src := mustAddr(t, "1.1.1.1", 8333)
	require.True(t, tbl.Add(svc, src, baseTime, 0))
	require.True(t, tbl.MarkGood(svc, baseTime, false))

	id, _ := tbl.index.Canonical(svc)
	e := tbl.index.Get(id)
	e.InTried = false // corrupt a tried entry's table flag so it claims to live in new

	// This alone does not make an alias; force an actual inconsistency by
	// also registering a bogus alias entry for the same service.
	alias := &Entry{Service: svc, Source: src, InTried: true, Bucket: e.Bucket, BucketPos: (e.BucketPos + 1) % BucketSize}
	tbl.index.InsertAlias(alias)

	err := tbl.Check()
	require.Error(t, err)
}

func TestCheckDetectsCounterDrift(t *testing.T) {
	tbl := newTestTable(t, 33)
	svc := mustAddr(t, "8.8.8.8", 8333)
	src := mustAddr(t, "1.1.1.1", 8333)
	require.True(t, tbl.Add(svc, src, baseTime, 0))

	tbl.index.countNew++ // desync the incremental counter from reality

	err := tbl.Check()
	require.Error(t, err)
	var addrErr *Error
	require.ErrorAs(t, err, &addrErr)
	require.Equal(t, ErrInvariant, addrErr.Code)
}
