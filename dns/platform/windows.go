//go:build windows

package platform

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/fosrl/newt/logger"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
	"golang.zx2c4.com/wireguard/windows/tunnel/winipcfg"
)

var (
	dnsapi                  = windows.NewLazySystemDLL("dnsapi.dll")
	dnsFlushResolverCacheFn = dnsapi.NewProc("DnsFlushResolverCache")
)

const (
	interfaceConfigPath       = `SYSTEM\CurrentControlSet\Services\Tcpip\Parameters\Interfaces`
	interface6ConfigPath      = `SYSTEM\CurrentControlSet\Services\Tcpip6\Parameters\Interfaces`
	interfaceConfigNameServer = "NameServer"
)

// WindowsAdapter manages DNS settings on Windows through the per-adapter
// NameServer registry values, falling back to the IP helper API
type WindowsAdapter struct{}

// NewWindowsAdapter creates a new Windows adapter
func NewWindowsAdapter() *WindowsAdapter {
	return &WindowsAdapter{}
}

// DetectAdapter returns the Windows registry adapter
func DetectAdapter(opts Options) (Adapter, error) {
	return NewWindowsAdapter(), nil
}

// Name returns the adapter name
func (w *WindowsAdapter) Name() string {
	return "windows-registry"
}

// ActiveInterface returns the adapter of the lowest-metric default route
func (w *WindowsAdapter) ActiveInterface() (ActiveInterface, error) {
	for _, family := range []winipcfg.AddressFamily{windows.AF_INET, windows.AF_INET6} {
		rows, err := winipcfg.GetIPForwardTable2(family)
		if err != nil {
			return ActiveInterface{}, readError("get route table", err)
		}

		var best *winipcfg.MibIPforwardRow2
		for i := range rows {
			row := &rows[i]
			if row.DestinationPrefix.PrefixLength != 0 {
				continue
			}
			if best == nil || row.Metric < best.Metric {
				best = row
			}
		}

		if best == nil {
			continue
		}

		return interfaceFromLUID(best.InterfaceLUID)
	}

	return ActiveInterface{}, ErrNoActiveInterface
}

// Interfaces lists adapters that are operationally up
func (w *WindowsAdapter) Interfaces() ([]ActiveInterface, error) {
	adapters, err := winipcfg.GetAdaptersAddresses(windows.AF_UNSPEC, winipcfg.GAAFlagDefault)
	if err != nil {
		return nil, readError("get adapters addresses", err)
	}

	var result []ActiveInterface
	for _, adapter := range adapters {
		if adapter.OperStatus != winipcfg.IfOperStatusUp || adapter.IfType == winipcfg.IfTypeSoftwareLoopback {
			continue
		}
		result = append(result, ActiveInterface{
			Name: adapter.FriendlyName(),
			ID:   adapter.AdapterName(),
		})
	}

	return result, nil
}

// ReadResolvers returns the static NameServer override of the adapter,
// IPv4 entries first. DHCP-provided servers are not an override.
func (w *WindowsAdapter) ReadResolvers(iface ActiveInterface) (ResolverConfig, error) {
	v4, err := readNameServer(interfaceConfigPath, iface.ID, true)
	if err != nil {
		return nil, err
	}

	v6, err := readNameServer(interface6ConfigPath, iface.ID, false)
	if err != nil {
		return nil, err
	}

	return append(v4, v6...), nil
}

// WriteResolvers sets the NameServer values of the adapter
func (w *WindowsAdapter) WriteResolvers(iface ActiveInterface, servers ResolverConfig) error {
	if err := writeByFamily(adapterNameServers{iface: iface}, servers); err != nil {
		return err
	}

	if err := flushDNSCache(); err != nil {
		logger.Warn("Failed to flush DNS cache: %v", err)
	}

	logEffectiveDNS(iface)
	return nil
}

// adapterNameServers is the familyStore of one adapter. Writes go to the
// registry and fall back to the IP helper API.
type adapterNameServers struct {
	iface ActiveInterface
}

func (a adapterNameServers) readFamily(ipv6 bool) (ResolverConfig, error) {
	if ipv6 {
		return readNameServer(interface6ConfigPath, a.iface.ID, false)
	}
	return readNameServer(interfaceConfigPath, a.iface.ID, true)
}

func (a adapterNameServers) writeFamily(ipv6 bool, servers ResolverConfig) error {
	basePath, family, label := interfaceConfigPath, winipcfg.AddressFamily(windows.AF_INET), "IPv4"
	required := true
	if ipv6 {
		basePath, family, label = interface6ConfigPath, winipcfg.AddressFamily(windows.AF_INET6), "IPv6"
		required = len(servers) > 0
	}

	err := writeNameServer(basePath, a.iface.ID, servers, required)
	if err == nil || !fallbackAllowed(err) {
		return err
	}

	logger.Warn("Registry write failed for %s (%s), falling back to IP helper API: %v", a.iface, label, err)
	return setDNSViaIPHelper(a.iface.ID, family, servers)
}

func readNameServer(basePath, guid string, required bool) (ResolverConfig, error) {
	regKeyPath := basePath + `\` + guid

	regKey, err := registry.OpenKey(registry.LOCAL_MACHINE, regKeyPath, registry.QUERY_VALUE)
	if err != nil {
		if !required && errors.Is(err, registry.ErrNotExist) {
			return ResolverConfig{}, nil
		}
		return nil, readError(`open HKEY_LOCAL_MACHINE\`+regKeyPath, err)
	}
	defer closeKey(regKey)

	nameServer, _, err := regKey.GetStringValue(interfaceConfigNameServer)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return ResolverConfig{}, nil
		}
		return nil, readError("get "+interfaceConfigNameServer, err)
	}

	return parseNameServerList(nameServer), nil
}

// writeNameServer stores servers in a single value write. A missing key is
// only an error when there is something to store.
func writeNameServer(basePath, guid string, servers ResolverConfig, required bool) error {
	regKeyPath := basePath + `\` + guid

	regKey, err := registry.OpenKey(registry.LOCAL_MACHINE, regKeyPath, registry.SET_VALUE)
	if err != nil {
		if !required && errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return writeError(`open HKEY_LOCAL_MACHINE\`+regKeyPath, err)
	}
	defer closeKey(regKey)

	value := formatNameServerList(servers)
	logger.Debug("Setting %s\\%s to %q", regKeyPath, interfaceConfigNameServer, value)

	if err := regKey.SetStringValue(interfaceConfigNameServer, value); err != nil {
		return writeError("set "+interfaceConfigNameServer, err)
	}

	return nil
}

func fallbackAllowed(err error) bool {
	return !errors.Is(err, ErrPermissionDenied)
}

func luidFromGUIDString(guid string) (winipcfg.LUID, error) {
	g, err := windows.GUIDFromString(guid)
	if err != nil {
		return 0, fmt.Errorf("parse GUID %s: %w", guid, err)
	}
	return winipcfg.LUIDFromGUID(&g)
}

func setDNSViaIPHelper(guid string, family winipcfg.AddressFamily, servers ResolverConfig) error {
	luid, err := luidFromGUIDString(guid)
	if err != nil {
		return writeError("resolve interface LUID", err)
	}

	if err := luid.SetDNS(family, servers, nil); err != nil {
		return writeError("SetInterfaceDnsSettings", err)
	}

	return nil
}

// logEffectiveDNS reports the list the IP helper API sees after a write so
// a coerced value is visible in debug logs
func logEffectiveDNS(iface ActiveInterface) {
	luid, err := luidFromGUIDString(iface.ID)
	if err != nil {
		return
	}
	effective, err := luid.DNS()
	if err != nil {
		logger.Debug("Could not query effective DNS for %s: %v", iface, err)
		return
	}
	logger.Debug("Effective DNS servers for %s: %v", iface, effective)
}

func interfaceFromLUID(luid winipcfg.LUID) (ActiveInterface, error) {
	guid, err := luid.GUID()
	if err != nil {
		return ActiveInterface{}, readError("convert LUID to GUID", err)
	}

	name := ""
	if row, err := luid.Interface(); err == nil {
		name = row.Alias()
	}

	return ActiveInterface{Name: name, ID: guid.String()}, nil
}

// flushDNSCache flushes the Windows DNS resolver cache
func flushDNSCache() (err error) {
	// dnsFlushResolverCacheFn.Call() may panic if the func is not found
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("DnsFlushResolverCache panicked: %v", rec)
		}
	}()

	ret, _, callErr := dnsFlushResolverCacheFn.Call()
	if ret == 0 {
		if callErr != nil && !errors.Is(callErr, syscall.Errno(0)) {
			return fmt.Errorf("DnsFlushResolverCache failed: %w", callErr)
		}
		return fmt.Errorf("DnsFlushResolverCache failed")
	}

	return nil
}

// closeKey closes a registry key and logs errors
func closeKey(closer io.Closer) {
	if err := closer.Close(); err != nil {
		logger.Warn("Failed to close registry key: %v", err)
	}
}
