package discovery

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryURL(t *testing.T) {
	tests := []struct {
		name  string
		entry *zeroconf.ServiceEntry
		want  string
		ok    bool
	}{
		{name: "nil", entry: nil},
		{name: "no port", entry: &zeroconf.ServiceEntry{AddrIPv4: []net.IP{net.ParseIP("10.0.0.2")}}},
		{name: "no address", entry: &zeroconf.ServiceEntry{Port: 8000}},
		{
			name:  "ipv4",
			entry: &zeroconf.ServiceEntry{Port: 8000, AddrIPv4: []net.IP{net.ParseIP("10.0.0.2")}, AddrIPv6: []net.IP{net.ParseIP("fe80::1")}},
			want:  "http://10.0.0.2:8000",
			ok:    true,
		},
		{
			name:  "ipv6 only",
			entry: &zeroconf.ServiceEntry{Port: 8000, AddrIPv6: []net.IP{net.ParseIP("fe80::1")}},
			want:  "http://[fe80::1]:8000",
			ok:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := entryURL(tt.entry)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdvertiseAndBrowse(t *testing.T) {
	if os.Getenv("COLLABTEXT_TEST_MDNS") == "" {
		t.Skip("COLLABTEXT_TEST_MDNS not set")
	}
	stop, err := Advertise(18000, zerolog.Nop())
	require.NoError(t, err)
	defer stop()

	u, err := Browse(context.Background(), 5*time.Second, zerolog.Nop())
	require.NoError(t, err)
	assert.Contains(t, u, ":18000")
}
