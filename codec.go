package addrmgr

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/btcsuite/btcd/wire"
)

// formatVersion is the only format byte this build knows how to write, and
// the newest one it will accept on read.
const formatVersion byte = 1

// maxCompat is the highest compat byte this build understands. A writer
// bumps the compat byte, without bumping formatVersion, when it adds fields
// that an older reader can safely ignore by skipping them; a reader that
// does not know how to skip them must refuse the stream instead of
// misinterpreting it.
const maxCompat byte = 0

var byteOrder = binary.LittleEndian

// Encode writes the table to w in this package's versioned binary format:
// a small header naming the format/compat version and the bucket key,
// followed by one record per distinct service. Bucket and position are
// never stored; a reader always recomputes them from the hasher, which
// also doubles as a tamper check on decode.
func (t *AddrTable) Encode(w io.Writer) error {
	if err := writeBytes(w, []byte{formatVersion, maxCompat}); err != nil {
		return err
	}
	key := t.hasher.Key()
	if err := writeBytes(w, key[:]); err != nil {
		return err
	}
	if err := writeInt32(w, int32(t.index.CountNew())); err != nil {
		return err
	}
	if err := writeInt32(w, int32(t.index.CountTried())); err != nil {
		return err
	}

	for _, key := range t.index.AllServices() {
		ids := t.index.ServiceEntryIDs(key)
		if err := t.encodeRecord(w, ids); err != nil {
			return err
		}
	}
	return nil
}

func (t *AddrTable) encodeRecord(w io.Writer, ids []entryID) error {
	canonical := t.index.Get(ids[0])
	st := t.stats.Get(canonical.StatsRef)

	if err := writeAddr(w, canonical.Service); err != nil {
		return err
	}
	if err := writeInt64(w, st.Time); err != nil {
		return err
	}
	if err := writeInt64(w, st.LastTry); err != nil {
		return err
	}
	if err := writeInt64(w, st.LastCountedAttempt); err != nil {
		return err
	}
	if err := writeInt64(w, st.LastSuccess); err != nil {
		return err
	}
	if err := writeInt32(w, st.Attempts); err != nil {
		return err
	}
	if err := writeInt64(w, int64(st.Services)); err != nil {
		return err
	}

	inTried := byte(0)
	if canonical.InTried {
		inTried = 1
	}
	if err := writeBytes(w, []byte{inTried}); err != nil {
		return err
	}

	if canonical.InTried {
		return writeAddr(w, canonical.Source)
	}

	if err := writeInt32(w, int32(len(ids))); err != nil {
		return err
	}
	if err := writeAddr(w, canonical.Source); err != nil {
		return err
	}
	for _, id := range ids[1:] {
		alias := t.index.Get(id)
		if err := writeAddr(w, alias.Source); err != nil {
			return err
		}
	}
	return nil
}

// DecodeAddrTable reconstructs a table from a stream produced by Encode.
// now is used exactly as it is in Add, to decide whether a colliding
// occupant discovered during restore looks terrible enough to evict. After
// every record has been restored, the table is run through Check; a stream
// that decodes cleanly but fails the consistency check is reported as
// corrupt rather than returned half-trusted.
func DecodeAddrTable(r io.Reader, group NetGroupManager, rnd Rand, now int64) (*AddrTable, error) {
	header := make([]byte, 2)
	if err := readFull(r, header); err != nil {
		return nil, err
	}
	if header[0] != formatVersion {
		return nil, errUnsupportedVersion("unknown format byte")
	}
	if header[1] > maxCompat {
		return nil, errUnsupportedVersion("stream requires a newer compat level")
	}

	var key [32]byte
	if err := readFull(r, key[:]); err != nil {
		return nil, err
	}

	countNew, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	countTried, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	if countNew < 0 || countTried < 0 {
		return nil, errCorruptStream("negative record count")
	}

	tbl := NewAddrTable(key, group, rnd)
	total := int(countNew) + int(countTried)
	for i := 0; i < total; i++ {
		if err := tbl.decodeRecord(r, now); err != nil {
			return nil, err
		}
	}

	if err := tbl.Check(); err != nil {
		return nil, errCorruptStream("decoded table is internally inconsistent: " + err.Error())
	}
	return tbl, nil
}

func (t *AddrTable) decodeRecord(r io.Reader, now int64) error {
	service, err := readAddr(r)
	if err != nil {
		return err
	}
	timeStamp, err := readInt64(r)
	if err != nil {
		return err
	}
	lastTry, err := readInt64(r)
	if err != nil {
		return err
	}
	lastCounted, err := readInt64(r)
	if err != nil {
		return err
	}
	lastSuccess, err := readInt64(r)
	if err != nil {
		return err
	}
	attempts, err := readInt32(r)
	if err != nil {
		return err
	}
	services, err := readInt64(r)
	if err != nil {
		return err
	}
	inTriedByte := make([]byte, 1)
	if err := readFull(r, inTriedByte); err != nil {
		return err
	}

	base := &Stats{
		Time:               timeStamp,
		LastTry:            lastTry,
		LastCountedAttempt: lastCounted,
		LastSuccess:        lastSuccess,
		Attempts:           attempts,
		Services:           wire.ServiceFlag(services),
	}

	if inTriedByte[0] != 0 {
		source, err := readAddr(r)
		if err != nil {
			return err
		}
		t.restoreTried(service, source, base)
		return nil
	}

	occCount, err := readInt32(r)
	if err != nil {
		return err
	}
	if occCount < 1 || occCount > NewBucketsPerAddress {
		return errCorruptStream("new record occurrence count out of range")
	}
	sources := make([]*wire.NetAddress, occCount)
	for i := range sources {
		src, err := readAddr(r)
		if err != nil {
			return err
		}
		sources[i] = src
	}
	t.restoreNew(service, sources, base, now)
	return nil
}

// restoreTried installs a decoded tried-table record, evicting whatever
// service currently occupies its target slot if the stream's records
// collide there.
func (t *AddrTable) restoreTried(service, source *wire.NetAddress, base *Stats) {
	bucket := t.hasher.TriedBucket(service)
	pos := t.hasher.Position(service, false, bucket)

	if occID, occupied := t.index.AtSlot(true, bucket, pos); occupied {
		occ := t.index.Get(occID)
		t.removeService(occ.Service)
	}

	ref := t.stats.Insert(base)
	e := &Entry{Service: service, Source: source, InTried: true, Bucket: bucket, BucketPos: pos, StatsRef: ref}
	id := t.index.InsertCanonical(e)
	base.BackRef = id
}

// restoreNew installs a decoded new-table record: its first source places
// the canonical entry, and each remaining source is placed as an alias via
// the same collision rules Add uses.
func (t *AddrTable) restoreNew(service *wire.NetAddress, sources []*wire.NetAddress, base *Stats, now int64) {
	canSource := sources[0]
	bucket := t.hasher.NewBucket(service, canSource)
	pos := t.hasher.Position(service, true, bucket)

	if occID, occupied := t.index.AtSlot(false, bucket, pos); occupied {
		occ := t.index.Get(occID)
		occStats := t.statsForEntry(occ)
		if isTerrible(occStats, now) || t.index.AliasCount(occ.Service) > 0 {
			t.removeEntry(occID)
		} else {
			// Canonical placement lost to the existing occupant;
			// the whole record (including its aliases) is dropped.
			return
		}
	}

	ref := t.stats.Insert(base)
	e := &Entry{Service: service, Source: canSource, Bucket: bucket, BucketPos: pos, StatsRef: ref}
	id := t.index.InsertCanonical(e)
	base.BackRef = id

	for _, src := range sources[1:] {
		t.placeAliasInNew(service, src, id, now)
	}
}

func writeAddr(w io.Writer, addr *wire.NetAddress) error {
	ip := addr.IP.To16()
	if ip == nil {
		ip = make(net.IP, 16)
	}
	if err := writeBytes(w, ip); err != nil {
		return err
	}
	return writeBytes(w, []byte{byte(addr.Port >> 8), byte(addr.Port)})
}

func readAddr(r io.Reader) (*wire.NetAddress, error) {
	buf := make([]byte, 18)
	if err := readFull(r, buf); err != nil {
		return nil, err
	}
	ip := net.IP(append([]byte(nil), buf[:16]...))
	port := uint16(buf[16])<<8 | uint16(buf[17])
	return &wire.NetAddress{IP: ip, Port: port}, nil
}

func writeBytes(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

func writeInt32(w io.Writer, v int32) error {
	var b [4]byte
	byteOrder.PutUint32(b[:], uint32(v))
	return writeBytes(w, b[:])
}

func writeInt64(w io.Writer, v int64) error {
	var b [8]byte
	byteOrder.PutUint64(b[:], uint64(v))
	return writeBytes(w, b[:])
}

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return errCorruptStream(err.Error())
	}
	return nil
}

func readInt32(r io.Reader) (int32, error) {
	var b [4]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(byteOrder.Uint32(b[:])), nil
}

func readInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(byteOrder.Uint64(b[:])), nil
}
