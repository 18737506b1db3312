package platform

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fosrl/newt/logger"
)

const (
	globalIPv4State    = "State:/Network/Global/IPv4"
	serviceDNSFormat   = "State:/Network/Service/%s/DNS"
	serviceDNSPattern  = "State:/Network/Service/[^/]+/DNS"
	serviceStatePrefix = "State:/Network/Service/"

	keyServerAddresses = "ServerAddresses"
	keyPrimaryService  = "PrimaryService"
	keyPrimaryIface    = "PrimaryInterface"
	arraySymbol        = "* "
)

// DarwinAdapter manages DNS settings on macOS through the dynamic system
// configuration store, keyed by network service. Each call runs a single
// scutil session.
type DarwinAdapter struct {
	run         func(commands string) ([]byte, error)
	flush       func() error
	requireRoot bool
}

// Name returns the adapter name
func (d *DarwinAdapter) Name() string {
	return "darwin-scutil"
}

// ActiveInterface returns the primary network service
func (d *DarwinAdapter) ActiveInterface() (ActiveInterface, error) {
	output, err := d.run(fmt.Sprintf("show %s\n", globalIPv4State))
	if err != nil {
		return ActiveInterface{}, readError("show "+globalIPv4State, err)
	}

	service, device := parsePrimaryService(output)
	if service == "" {
		return ActiveInterface{}, ErrNoActiveInterface
	}

	return ActiveInterface{Name: device, ID: service}, nil
}

// Interfaces lists the network services that publish DNS state
func (d *DarwinAdapter) Interfaces() ([]ActiveInterface, error) {
	output, err := d.run(fmt.Sprintf("list %s\n", serviceDNSPattern))
	if err != nil {
		return nil, readError("list services", err)
	}

	var result []ActiveInterface
	for _, id := range parseServiceList(output) {
		result = append(result, ActiveInterface{ID: id})
	}
	return result, nil
}

// ReadResolvers returns the ServerAddresses of the service DNS dictionary
func (d *DarwinAdapter) ReadResolvers(iface ActiveInterface) (ResolverConfig, error) {
	key := fmt.Sprintf(serviceDNSFormat, iface.ID)

	output, err := d.run(fmt.Sprintf("show %s\n", key))
	if err != nil {
		return nil, readError("show "+key, err)
	}

	return parseServerAddresses(output), nil
}

// WriteResolvers replaces ServerAddresses in the service DNS dictionary and
// publishes the dictionary with a single set
func (d *DarwinAdapter) WriteResolvers(iface ActiveInterface, servers ResolverConfig) error {
	if d.requireRoot && os.Geteuid() != 0 {
		return ErrPermissionDenied
	}

	key := fmt.Sprintf(serviceDNSFormat, iface.ID)
	script := buildServerAddressesScript(key, servers)
	logger.Debug("Setting %s of %s to %s", keyServerAddresses, key, servers)

	output, err := d.run(script)
	if err != nil {
		return writeError("set "+key, err)
	}
	if err := scutilOutputError(output); err != nil {
		return writeError("set "+key, err)
	}

	if d.flush != nil {
		if err := d.flush(); err != nil {
			logger.Warn("Failed to flush DNS cache: %v", err)
		}
	}

	return nil
}

// buildServerAddressesScript loads the current dictionary so that other
// keys such as SearchDomains survive, then edits ServerAddresses
func buildServerAddressesScript(key string, servers ResolverConfig) string {
	var b strings.Builder
	b.WriteString("d.init\n")
	fmt.Fprintf(&b, "get %s\n", key)

	if len(servers) == 0 {
		fmt.Fprintf(&b, "d.remove %s\n", keyServerAddresses)
	} else {
		fmt.Fprintf(&b, "d.add %s %s%s\n", keyServerAddresses, arraySymbol, strings.Join(servers.Strings(), " "))
	}

	fmt.Fprintf(&b, "set %s\n", key)
	return b.String()
}

// parsePrimaryService extracts the primary service ID and BSD device name
func parsePrimaryService(output []byte) (service, device string) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), " : ")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case keyPrimaryService:
			service = strings.TrimSpace(value)
		case keyPrimaryIface:
			device = strings.TrimSpace(value)
		}
	}
	return service, device
}

// parseServerAddresses parses DNS server addresses from scutil output
func parseServerAddresses(output []byte) ResolverConfig {
	servers := ResolverConfig{}
	inServerArray := false

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, keyServerAddresses+" : <array> {") {
			inServerArray = true
			continue
		}

		if line == "}" {
			inServerArray = false
			continue
		}

		if inServerArray {
			// Line format: "0 : 8.8.8.8"
			parts := strings.SplitN(line, " : ", 2)
			if len(parts) == 2 {
				if parsed, err := ParseResolverConfig([]string{parts[1]}); err == nil {
					servers = append(servers, parsed...)
				}
			}
		}
	}

	return servers
}

// parseServiceList extracts service IDs from the output of a list command
func parseServiceList(output []byte) []string {
	var ids []string

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		_, key, ok := strings.Cut(scanner.Text(), " = ")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if !strings.HasPrefix(key, serviceStatePrefix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(key, serviceStatePrefix), "/DNS")
		if id != "" && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	}

	return ids
}

// scutilOutputError detects failures that scutil reports on stdout while
// still exiting with status zero
func scutilOutputError(output []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(line)
		switch {
		case lower == "" || strings.Contains(lower, "no such key"):
			continue
		case strings.Contains(lower, "permission denied") || strings.Contains(lower, "not permitted"):
			return ErrPermissionDenied
		case strings.Contains(lower, "failed") || strings.Contains(lower, "error"):
			return errors.New(line)
		}
	}
	return nil
}
