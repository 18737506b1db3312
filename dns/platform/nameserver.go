package platform

import (
	"strings"

	"github.com/fosrl/newt/logger"
)

// parseNameServerList parses a comma or space-separated list of DNS servers
// as stored in the registry NameServer value
func parseNameServerList(serverList string) ResolverConfig {
	servers := ResolverConfig{}

	parts := strings.FieldsFunc(serverList, func(r rune) bool {
		return r == ',' || r == ' '
	})

	for _, part := range parts {
		if parsed, err := ParseResolverConfig([]string{part}); err == nil {
			servers = append(servers, parsed...)
		}
	}

	return servers
}

// formatNameServerList renders servers in the comma-separated NameServer form
func formatNameServerList(servers ResolverConfig) string {
	return strings.Join(servers.Strings(), ",")
}

// splitByFamily separates IPv4 and IPv6 servers, keeping relative order
func splitByFamily(servers ResolverConfig) (v4, v6 ResolverConfig) {
	v4, v6 = ResolverConfig{}, ResolverConfig{}
	for _, server := range servers {
		if server.Is4() {
			v4 = append(v4, server)
		} else {
			v6 = append(v6, server)
		}
	}
	return v4, v6
}

// familyStore holds one resolver list per address family, as the Windows
// Tcpip and Tcpip6 NameServer values do
type familyStore interface {
	readFamily(ipv6 bool) (ResolverConfig, error)
	writeFamily(ipv6 bool, servers ResolverConfig) error
}

// writeByFamily stores the IPv4 servers and then the IPv6 servers. If the
// IPv6 write fails the previous IPv4 list is written back so a failed call
// leaves the old configuration rather than a mix of old and new.
func writeByFamily(store familyStore, servers ResolverConfig) error {
	v4, v6 := splitByFamily(servers)

	previous, err := store.readFamily(false)
	if err != nil {
		return err
	}

	if err := store.writeFamily(false, v4); err != nil {
		return err
	}

	if err := store.writeFamily(true, v6); err != nil {
		if restoreErr := store.writeFamily(false, previous); restoreErr != nil {
			logger.Error("Failed to restore IPv4 servers %s after IPv6 write failure: %v", previous, restoreErr)
		} else {
			logger.Warn("IPv6 write failed, restored IPv4 servers %s", previous)
		}
		return err
	}

	return nil
}
