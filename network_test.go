package addrmgr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRoutable(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		routable bool
	}{
		{"public v4", "8.8.8.8", true},
		{"rfc1918 private", "192.168.1.1", false},
		{"loopback", "127.0.0.1", false},
		{"link-local v4", "169.254.1.1", false},
		{"documentation range", "192.0.2.1", false},
		{"unspecified", "0.0.0.0", false},
		{"public v6", "2607:f8b0::1", true},
		{"unique-local v6", "fc00::1", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			addr := mustAddr(t, tc.ip, 8333)
			require.Equal(t, tc.routable, IsRoutable(addr))
		})
	}
}

func TestIsOnionCatTor(t *testing.T) {
	tor := mustAddr(t, "fd87:d87e:eb43:1234::1", 8333)
	require.True(t, IsOnionCatTor(tor))
	require.False(t, IsOnionCatTor(mustAddr(t, "fc00::1", 8333)))
}

func TestIPGroupKeyStability(t *testing.T) {
	g := IPGroupManager{}

	a := mustAddr(t, "8.8.8.8", 8333)
	b := mustAddr(t, "8.8.4.4", 8333)
	require.Equal(t, g.GroupKey(a), g.GroupKey(b), "both addresses share a /16")

	c := mustAddr(t, "9.9.9.9", 8333)
	require.NotEqual(t, g.GroupKey(a), g.GroupKey(c))
}

func TestIPGroupKeyLocalAndTor(t *testing.T) {
	g := IPGroupManager{}

	local := mustAddr(t, "127.0.0.1", 8333)
	require.Equal(t, "local", string(g.GroupKey(local)))

	tor1 := mustAddr(t, "fd87:d87e:eb43:1111::1", 8333)
	tor2 := mustAddr(t, "fd87:d87e:eb43:2222::1", 8333)
	require.NotEqual(t, g.GroupKey(tor1), g.GroupKey(tor2),
		"different onion prefixes should usually land in different tor groups")
}
