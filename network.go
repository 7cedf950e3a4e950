package addrmgr

import (
	"fmt"
	"net"

	"github.com/btcsuite/btcd/wire"
)

// NetGroupManager is the oracle the manager consults to place an address
// into its network group for bucketing purposes. Two addresses that share a
// network group are treated as belonging to the same operator for diversity
// purposes. Implementations must be deterministic and side-effect free.
type NetGroupManager interface {
	// GroupKey returns the byte-vector identifying the network group an
	// address belongs to.
	GroupKey(addr *wire.NetAddress) []byte
}

// IPGroupManager is the default NetGroupManager, grouping IPv4 addresses by
// their /16 and IPv6 addresses by /32 (/36 for Hurricane Electric's block),
// with special handling for local, unroutable, and Tor addresses.
type IPGroupManager struct{}

// GroupKey implements NetGroupManager.
func (IPGroupManager) GroupKey(addr *wire.NetAddress) []byte {
	return []byte(ipGroupKey(addr))
}

var (
	rfc1918Nets = []net.IPNet{
		ipNet("10.0.0.0", 8, 32),
		ipNet("172.16.0.0", 12, 32),
		ipNet("192.168.0.0", 16, 32),
	}
	rfc2544Net = ipNet("198.18.0.0", 15, 32)
	rfc3849Net = ipNet("2001:DB8::", 32, 128)
	rfc3927Net = ipNet("169.254.0.0", 16, 32)
	rfc3964Net = ipNet("2002::", 16, 128)
	rfc4193Net = ipNet("FC00::", 7, 128)
	rfc4380Net = ipNet("2001::", 32, 128)
	rfc4843Net = ipNet("2001:10::", 28, 128)
	rfc4862Net = ipNet("FE80::", 64, 128)
	rfc5737Net = []net.IPNet{
		ipNet("192.0.2.0", 24, 32),
		ipNet("198.51.100.0", 24, 32),
		ipNet("203.0.113.0", 24, 32),
	}
	rfc6052Net = ipNet("64:FF9B::", 96, 128)
	rfc6145Net = ipNet("::FFFF:0:0:0", 96, 128)
	rfc6598Net = ipNet("100.64.0.0", 10, 32)

	// onionCatNet is the IPv6 range bitcoind uses to encode a .onion
	// address as a 16-byte number: 6 magic bytes followed by the first
	// 10 bytes of the base32-decoded onion key hash.
	onionCatNet = ipNet("fd87:d87e:eb43::", 48, 128)

	zero4Net = ipNet("0.0.0.0", 8, 32)
	heNet    = ipNet("2001:470::", 32, 128)
)

func ipNet(ip string, ones, bits int) net.IPNet {
	return net.IPNet{IP: net.ParseIP(ip), Mask: net.CIDRMask(ones, bits)}
}

// IsIPv4 returns whether the given address is an IPv4 address.
func IsIPv4(na *wire.NetAddress) bool {
	return na.IP.To4() != nil
}

// IsLocal returns whether the given address is a local address.
func IsLocal(na *wire.NetAddress) bool {
	return na.IP.IsLoopback() || zero4Net.Contains(na.IP)
}

// IsOnionCatTor returns whether the passed address is in the IPv6 range used
// to encode Tor .onion addresses (fd87:d87e:eb43::/48).
func IsOnionCatTor(na *wire.NetAddress) bool {
	return onionCatNet.Contains(na.IP)
}

func isRFC1918(na *wire.NetAddress) bool {
	for _, rfc := range rfc1918Nets {
		if rfc.Contains(na.IP) {
			return true
		}
	}
	return false
}

func isRFC5737(na *wire.NetAddress) bool {
	for _, rfc := range rfc5737Net {
		if rfc.Contains(na.IP) {
			return true
		}
	}
	return false
}

// IsValid returns whether the passed address is well-formed. An address is
// invalid if it is unspecified (all zero) or the IPv4 broadcast address.
func IsValid(na *wire.NetAddress) bool {
	return na.IP != nil && !(na.IP.IsUnspecified() ||
		na.IP.Equal(net.IPv4bcast))
}

// IsRoutable returns whether the passed address is routable over the public
// internet. This is true as long as the address is valid and not in any
// reserved range.
func IsRoutable(na *wire.NetAddress) bool {
	return IsValid(na) && !(isRFC1918(na) || rfc2544Net.Contains(na.IP) ||
		rfc3927Net.Contains(na.IP) || rfc4862Net.Contains(na.IP) ||
		rfc3849Net.Contains(na.IP) || rfc4843Net.Contains(na.IP) ||
		isRFC5737(na) || rfc6598Net.Contains(na.IP) ||
		IsLocal(na) || (rfc4193Net.Contains(na.IP) && !IsOnionCatTor(na)))
}

// ipGroupKey returns a string representing the network group an address is
// part of: the /16 for IPv4, the /32 (/36 for he.net) for IPv6, "local" for a
// local address, "tor:<n>" for a Tor address, and "unroutable" otherwise.
func ipGroupKey(na *wire.NetAddress) string {
	if IsLocal(na) {
		return "local"
	}
	if !IsRoutable(na) {
		return "unroutable"
	}
	if IsIPv4(na) {
		return na.IP.Mask(net.CIDRMask(16, 32)).String()
	}
	if rfc6145Net.Contains(na.IP) || rfc6052Net.Contains(na.IP) {
		ip := na.IP[12:16]
		return ip.Mask(net.CIDRMask(16, 32)).String()
	}
	if rfc3964Net.Contains(na.IP) {
		ip := na.IP[2:6]
		return ip.Mask(net.CIDRMask(16, 32)).String()
	}
	if rfc4380Net.Contains(na.IP) {
		ip := net.IP(make([]byte, 4))
		for i, b := range na.IP[12:16] {
			ip[i] = b ^ 0xff
		}
		return ip.Mask(net.CIDRMask(16, 32)).String()
	}
	if IsOnionCatTor(na) {
		return fmt.Sprintf("tor:%d", na.IP[6]&((1<<4)-1))
	}

	bits := 32
	if heNet.Contains(na.IP) {
		bits = 36
	}
	return na.IP.Mask(net.CIDRMask(bits, 128)).String()
}
