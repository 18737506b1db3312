// Package override subverts and reverts the host resolver configuration.
package override

import (
	"errors"
	"fmt"

	"github.com/fosrl/dnsutility/dns/backup"
	"github.com/fosrl/dnsutility/dns/platform"
	"github.com/fosrl/newt/logger"
)

// Controller drives the subversion state machine. It keeps no state between
// calls: every operation classifies the host afresh.
type Controller struct {
	adapter   platform.Adapter
	store     backup.Store
	target    platform.ResolverConfig
	inspector *Inspector
}

// Report is the detailed view returned by Inspect
type Report struct {
	Adapter    string                     `json:"adapter"`
	Interface  platform.ActiveInterface   `json:"interface"`
	Live       platform.ResolverConfig    `json:"live"`
	Target     platform.ResolverConfig    `json:"target"`
	State      string                     `json:"state"`
	Backup     *backup.Record             `json:"backup,omitempty"`
	Interfaces []platform.ActiveInterface `json:"interfaces,omitempty"`
}

// NewController creates a controller that subverts to target
func NewController(adapter platform.Adapter, store backup.Store, target platform.ResolverConfig) (*Controller, error) {
	if adapter == nil {
		return nil, errors.New("platform adapter is nil")
	}
	if store == nil {
		return nil, errors.New("backup store is nil")
	}
	if len(target) == 0 {
		return nil, errors.New("subversion target has no resolvers")
	}

	return &Controller{
		adapter:   adapter,
		store:     store,
		target:    target.Clone(),
		inspector: NewInspector(adapter, store, target),
	}, nil
}

// Target returns the resolver list the controller subverts to
func (c *Controller) Target() platform.ResolverConfig {
	return c.target.Clone()
}

// Status reports the current subversion state
func (c *Controller) Status() (State, error) {
	snap, err := c.inspector.Classify()
	if err != nil {
		return Unknown, err
	}
	logger.Debug("Resolvers of %s are %s, backup present: %t", snap.Interface, snap.Live, snap.HasBackup)
	return snap.State, nil
}

// Subvert points the active interface at the target resolvers, saving the
// original configuration first. Subverting a subverted host does nothing.
func (c *Controller) Subvert() error {
	snap, err := c.inspector.Classify()
	if err != nil {
		return err
	}

	switch snap.State {
	case Subverted:
		logger.Info("DNS is already subverted on %s", snap.Interface)
		return nil
	case Unknown:
		return inconsistent(snap, c.target)
	}

	logger.Info("Current DNS servers on %s: %s", snap.Interface, snap.Live)

	rec := backup.NewRecord(c.adapter.Name(), snap.Interface, snap.Live)
	if err := c.store.Save(rec); err != nil {
		return fmt.Errorf("save original resolvers: %w", err)
	}
	logger.Info("Original DNS servers backed up: %s (backup %s)", snap.Live, rec.ID)

	logger.Info("Setting DNS servers to: %s", c.target)
	if err := c.adapter.WriteResolvers(snap.Interface, c.target); err != nil {
		c.rollbackBackup(snap)
		return fmt.Errorf("set resolvers on %s: %w", snap.Interface, err)
	}

	if err := c.verify(snap.Interface, c.target); err != nil {
		return err
	}

	logger.Info("DNS subverted on %s", snap.Interface)
	return nil
}

// Revert restores the configuration saved by Subvert and then discards the
// backup. Reverting a reverted host does nothing.
func (c *Controller) Revert() error {
	snap, err := c.inspector.Classify()
	if err != nil {
		return err
	}

	switch snap.State {
	case Reverted:
		logger.Info("DNS is already reverted on %s", snap.Interface)
		return nil
	case Unknown:
		return inconsistent(snap, c.target)
	}

	rec, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("load original resolvers: %w", err)
	}

	if rec.Interface.ID != "" && rec.Interface.ID != snap.Interface.ID {
		logger.Warn("Backup was taken on %s but the active interface is now %s; restoring to %s",
			rec.Interface, snap.Interface, snap.Interface)
	}

	logger.Info("Restoring original DNS servers: %s (backup %s)", rec.Servers, rec.ID)
	if err := c.adapter.WriteResolvers(snap.Interface, rec.Servers); err != nil {
		return fmt.Errorf("restore resolvers on %s: %w", snap.Interface, err)
	}

	if err := c.verify(snap.Interface, rec.Servers); err != nil {
		return err
	}

	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("clear backup: %w", err)
	}

	logger.Info("DNS configuration restored successfully")
	return nil
}

// Inspect returns a detailed report of the adapter, interfaces, live and
// backed up configurations
func (c *Controller) Inspect() (Report, error) {
	snap, err := c.inspector.Classify()
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Adapter:   c.adapter.Name(),
		Interface: snap.Interface,
		Live:      snap.Live,
		Target:    c.target.Clone(),
		State:     snap.State.String(),
	}

	if snap.HasBackup {
		rec, err := c.store.Load()
		switch {
		case err == nil:
			report.Backup = &rec
		case errors.Is(err, backup.ErrNoBackup):
		default:
			return Report{}, fmt.Errorf("load backup: %w", err)
		}
	}

	ifaces, err := c.adapter.Interfaces()
	if err != nil {
		logger.Warn("Could not list interfaces: %v", err)
	} else {
		report.Interfaces = ifaces
	}

	return report, nil
}

// verify re-reads the interface and compares against want
func (c *Controller) verify(iface platform.ActiveInterface, want platform.ResolverConfig) error {
	got, err := c.adapter.ReadResolvers(iface)
	if err != nil {
		return fmt.Errorf("verify resolvers on %s: %w", iface, err)
	}
	if !got.Equal(want) {
		return fmt.Errorf("%w: %s: expected %s, read back %s", ErrVerificationFailed, iface, want, got)
	}
	return nil
}

// rollbackBackup discards the backup saved by a failed Subvert, but only
// when the host provably still holds the saved configuration
func (c *Controller) rollbackBackup(snap Snapshot) {
	live, err := c.adapter.ReadResolvers(snap.Interface)
	if err != nil {
		logger.Warn("Could not re-read resolvers after failed write, keeping backup: %v", err)
		return
	}

	if !live.Equal(snap.Live) {
		logger.Warn("Resolvers on %s changed to %s despite the failed write, keeping backup", snap.Interface, live)
		return
	}

	if err := c.store.Clear(); err != nil {
		logger.Warn("Failed to discard backup after failed write: %v", err)
		return
	}
	logger.Debug("Discarded backup, resolvers on %s are unchanged", snap.Interface)
}

func inconsistent(snap Snapshot, target platform.ResolverConfig) error {
	return fmt.Errorf("%w: %s has resolvers %s (target %s), backup present: %t",
		ErrInconsistentState, snap.Interface, snap.Live, target, snap.HasBackup)
}
