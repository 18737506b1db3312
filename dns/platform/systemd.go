//go:build linux && !android

package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/fosrl/newt/logger"
	dbus "github.com/godbus/dbus/v5"
)

const (
	systemdResolvedDest          = "org.freedesktop.resolve1"
	systemdDbusObjectNode        = "/org/freedesktop/resolve1"
	systemdDbusManagerIface      = "org.freedesktop.resolve1.Manager"
	systemdDbusFlushCachesMethod = systemdDbusManagerIface + ".FlushCaches"
	dbusPeerPingMethod           = "org.freedesktop.DBus.Peer.Ping"
)

// flushSystemResolver drops cached answers in systemd-resolved so the new
// resolver file takes effect immediately. Hosts without it are skipped.
func flushSystemResolver() {
	if !IsSystemdResolvedAvailable() {
		return
	}

	if err := flushSystemdResolved(); err != nil {
		logger.Warn("Failed to flush systemd-resolved cache: %v", err)
	}
}

// flushSystemdResolved flushes the systemd-resolved DNS cache
func flushSystemdResolved() error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(systemdResolvedDest, systemdDbusObjectNode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := obj.CallWithContext(ctx, systemdDbusFlushCachesMethod, 0).Store(); err != nil {
		return fmt.Errorf("flush caches: %w", err)
	}

	logger.Debug("Flushed systemd-resolved cache")
	return nil
}

// IsSystemdResolvedAvailable checks if systemd-resolved is available and responsive
func IsSystemdResolvedAvailable() bool {
	conn, err := dbus.SystemBus()
	if err != nil {
		return false
	}
	defer conn.Close()

	obj := conn.Object(systemdResolvedDest, systemdDbusObjectNode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := obj.CallWithContext(ctx, dbusPeerPingMethod, 0).Store(); err != nil {
		return false
	}

	return true
}
