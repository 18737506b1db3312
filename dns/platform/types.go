package platform

import (
	"fmt"
	"net/netip"
	"strings"
)

// Adapter provides a uniform view of the host resolver configuration
// across the native configuration stores of each operating system family
type Adapter interface {
	// Name returns the name of this adapter implementation
	Name() string

	// ActiveInterface returns the interface whose resolver configuration
	// is authoritative for the default route
	ActiveInterface() (ActiveInterface, error)

	// Interfaces lists the network services/interfaces that are currently up
	Interfaces() ([]ActiveInterface, error)

	// ReadResolvers returns the explicit resolver override of the interface,
	// or an empty config if none is set
	ReadResolvers(iface ActiveInterface) (ResolverConfig, error)

	// WriteResolvers replaces the resolver list of the interface. Readers
	// observe either the old or the new list, never a mix.
	WriteResolvers(iface ActiveInterface, servers ResolverConfig) error
}

// ActiveInterface identifies a network service or interface
type ActiveInterface struct {
	// Name is the human readable name (link name, BSD device or adapter alias)
	Name string `json:"name"`

	// ID is the native identifier (link name, service ID or adapter GUID)
	ID string `json:"id"`
}

func (a ActiveInterface) String() string {
	if a.Name == "" || a.Name == a.ID {
		return a.ID
	}
	return fmt.Sprintf("%s (%s)", a.Name, a.ID)
}

// ResolverConfig is an ordered list of resolver addresses. Order is
// resolution priority.
type ResolverConfig []netip.Addr

// ParseResolverConfig parses a list of IP literals
func ParseResolverConfig(servers []string) (ResolverConfig, error) {
	config := make(ResolverConfig, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("parse resolver address %q: %w", s, err)
		}
		config = append(config, addr.Unmap())
	}
	return config, nil
}

// MustParseResolverConfig is like ParseResolverConfig but panics on error
func MustParseResolverConfig(servers ...string) ResolverConfig {
	config, err := ParseResolverConfig(servers)
	if err != nil {
		panic(err)
	}
	return config
}

// Equal reports whether both configs hold the same addresses in the same order
func (c ResolverConfig) Equal(other ResolverConfig) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// Strings returns the addresses in textual form
func (c ResolverConfig) Strings() []string {
	out := make([]string, 0, len(c))
	for _, addr := range c {
		out = append(out, addr.String())
	}
	return out
}

// Clone returns a copy that does not share the backing array
func (c ResolverConfig) Clone() ResolverConfig {
	out := make(ResolverConfig, len(c))
	copy(out, c)
	return out
}

func (c ResolverConfig) String() string {
	if len(c) == 0 {
		return "[]"
	}
	return "[" + strings.Join(c.Strings(), ", ") + "]"
}

// Options carries the startup inputs used to build the platform adapter
type Options struct {
	// ResolvConfPath is the resolver file managed on POSIX hosts
	ResolvConfPath string
}
