package override

import (
	"fmt"

	"github.com/fosrl/dnsutility/dns/backup"
	"github.com/fosrl/dnsutility/dns/platform"
)

// State is the derived subversion state of the host
type State int

const (
	Unknown State = iota
	Reverted
	Subverted
)

func (s State) String() string {
	switch s {
	case Reverted:
		return "Reverted"
	case Subverted:
		return "Subverted"
	default:
		return "Unknown"
	}
}

// Snapshot is everything a classification observed
type Snapshot struct {
	Interface platform.ActiveInterface
	Live      platform.ResolverConfig
	HasBackup bool
	State     State
}

// Inspector derives the subversion state from the live configuration and
// the presence of a backup. It never changes either.
type Inspector struct {
	adapter platform.Adapter
	store   backup.Store
	target  platform.ResolverConfig
}

func NewInspector(adapter platform.Adapter, store backup.Store, target platform.ResolverConfig) *Inspector {
	return &Inspector{adapter: adapter, store: store, target: target.Clone()}
}

// Classify reads the active interface, its live resolvers and the backup
// flag, and derives the state
func (i *Inspector) Classify() (Snapshot, error) {
	iface, err := i.adapter.ActiveInterface()
	if err != nil {
		return Snapshot{}, fmt.Errorf("find active interface: %w", err)
	}

	live, err := i.adapter.ReadResolvers(iface)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read resolvers of %s: %w", iface, err)
	}

	hasBackup, err := i.store.HasBackup()
	if err != nil {
		return Snapshot{}, fmt.Errorf("check backup: %w", err)
	}

	return Snapshot{
		Interface: iface,
		Live:      live,
		HasBackup: hasBackup,
		State:     classify(live, i.target, hasBackup),
	}, nil
}

func classify(live, target platform.ResolverConfig, hasBackup bool) State {
	subverted := live.Equal(target)
	switch {
	case subverted && hasBackup:
		return Subverted
	case !subverted && !hasBackup:
		return Reverted
	default:
		return Unknown
	}
}
