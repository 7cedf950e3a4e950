package addrmgr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tbl := newTestTable(t, 20)

	newAddr := mustAddr(t, "8.8.8.8", 8333)
	triedAddr := mustAddr(t, "9.9.9.9", 8333)
	src := mustAddr(t, "1.1.1.1", 8333)

	require.True(t, tbl.Add(newAddr, src, baseTime, 0))
	require.True(t, tbl.Add(triedAddr, src, baseTime, 0))
	require.True(t, tbl.MarkGood(triedAddr, baseTime, false))

	var buf bytes.Buffer
	require.NoError(t, tbl.Encode(&buf))

	decoded, err := DecodeAddrTable(&buf, IPGroupManager{}, NewSeededRand(tbl.Key()), baseTime+1)
	require.NoError(t, err)

	require.Equal(t, tbl.Key(), decoded.Key())
	require.Equal(t, tbl.CountNew(), decoded.CountNew())
	require.Equal(t, tbl.CountTried(), decoded.CountTried())

	res := decoded.Find(newAddr)
	require.True(t, res.Found)
	require.False(t, res.InTried)

	res = decoded.Find(triedAddr)
	require.True(t, res.Found)
	require.True(t, res.InTried)

	require.NoError(t, decoded.Check())
}

func TestDecodeRejectsUnknownFormatVersion(t *testing.T) {
	tbl := newTestTable(t, 21)
	var buf bytes.Buffer
	require.NoError(t, tbl.Encode(&buf))

	corrupt := buf.Bytes()
	corrupt[0] = formatVersion + 1

	_, err := DecodeAddrTable(bytes.NewReader(corrupt), IPGroupManager{}, NewSeededRand(tbl.Key()), baseTime)
	require.Error(t, err)

	var addrErr *Error
	require.ErrorAs(t, err, &addrErr)
	require.Equal(t, ErrUnsupportedVersion, addrErr.Code)
}

func TestDecodeRejectsTruncatedStream(t *testing.T) {
	tbl := newTestTable(t, 22)
	svc := mustAddr(t, "8.8.8.8", 8333)
	src := mustAddr(t, "1.1.1.1", 8333)
	require.True(t, tbl.Add(svc, src, baseTime, 0))

	var buf bytes.Buffer
	require.NoError(t, tbl.Encode(&buf))

	truncated := buf.Bytes()[:buf.Len()-4]
	_, err := DecodeAddrTable(bytes.NewReader(truncated), IPGroupManager{}, NewSeededRand(tbl.Key()), baseTime)
	require.Error(t, err)

	var addrErr *Error
	require.ErrorAs(t, err, &addrErr)
	require.Equal(t, ErrCorruptStream, addrErr.Code)
}

func TestDecodeRejectsNegativeRecordCount(t *testing.T) {
	tbl := newTestTable(t, 23)
	var buf bytes.Buffer
	require.NoError(t, tbl.Encode(&buf))

	raw := buf.Bytes()
	// countNew lives right after the 2-byte header and 32-byte key.
	offset := 2 + 32
	byteOrder.PutUint32(raw[offset:], 0xFFFFFFFF) // -1 as int32

	_, err := DecodeAddrTable(bytes.NewReader(raw), IPGroupManager{}, NewSeededRand(tbl.Key()), baseTime)
	require.Error(t, err)

	var addrErr *Error
	require.ErrorAs(t, err, &addrErr)
	require.Equal(t, ErrCorruptStream, addrErr.Code)
}

func TestEncodeDecodeRoundTripWithAlias(t *testing.T) {
	tbl := newTestTable(t, 24)
	svc := mustAddr(t, "8.8.8.8", 8333)
	src1 := mustAddr(t, "1.1.1.1", 8333)
	src2 := mustAddr(t, "2.2.2.2", 8333)

	require.True(t, tbl.Add(svc, src1, baseTime, 0))

	svc2 := mustAddr(t, "8.8.8.8", 8333)
	svc2.Timestamp = svc2.Timestamp.Add(48 * 3600 * 1e9)
	tbl.Add(svc2, src2, baseTime+48*3600, 0)

	var buf bytes.Buffer
	require.NoError(t, tbl.Encode(&buf))

	decoded, err := DecodeAddrTable(&buf, IPGroupManager{}, NewSeededRand(tbl.Key()), baseTime+48*3600+1)
	require.NoError(t, err)
	require.Equal(t, tbl.CountNew(), decoded.CountNew())
	require.NoError(t, decoded.Check())
}
