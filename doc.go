// Package addrmgr implements an in-memory database of peer network
// addresses learned by a peer-to-peer node, along with the bucketing and
// selection scheme used to decide which peer to try connecting to next.
//
// Addresses are split across a "new" table (learned, never confirmed) and a
// "tried" table (confirmed by at least one successful connection). Placement
// within either table is driven by a keyed hash of the address and the
// network group of both the address and the peer that relayed it, so that an
// attacker who controls one network group can only ever dominate a bounded
// fraction of either table.
package addrmgr
