// Package discovery advertises a relay on the local network over mDNS
// and lets agents find one without configuration.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
)

const (
	Service = "_collabtext._tcp"
	Domain  = "local."
)

// ErrNotFound is returned by Browse when no relay answered in time.
var ErrNotFound = errors.New("discovery: no relay found")

// Advertise registers a relay listening on port. Call the returned
// function to withdraw it.
func Advertise(port int, log zerolog.Logger) (func(), error) {
	host, _ := os.Hostname()
	instance := fmt.Sprintf("CollabText-%s", host)
	server, err := zeroconf.Register(instance, Service, Domain, port, []string{"txtv=0", "scheme=http"}, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	log.Info().Str("module", "discovery").Str("instance", instance).Int("port", port).Msg("mDNS service registered")
	return server.Shutdown, nil
}

// Browse waits up to timeout for the first relay to answer and returns
// its base URL, e.g. http://192.168.1.20:8000.
func Browse(ctx context.Context, timeout time.Duration, log zerolog.Logger) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("initialize mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return "", fmt.Errorf("browse for mDNS services: %w", err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNotFound
			}
			u, ok := entryURL(entry)
			if !ok {
				continue
			}
			log.Info().Str("module", "discovery").Str("instance", entry.Instance).Str("url", u).Msg("mDNS discovered relay")
			return u, nil
		case <-ctx.Done():
			return "", ErrNotFound
		}
	}
}

// entryURL prefers an IPv4 address.
func entryURL(e *zeroconf.ServiceEntry) (string, bool) {
	if e == nil || e.Port == 0 {
		return "", false
	}
	var ip net.IP
	switch {
	case len(e.AddrIPv4) > 0:
		ip = e.AddrIPv4[0]
	case len(e.AddrIPv6) > 0:
		ip = e.AddrIPv6[0]
	default:
		return "", false
	}
	return "http://" + net.JoinHostPort(ip.String(), strconv.Itoa(e.Port)), true
}
