package platform

import (
	"bufio"
	"os"
	"strings"
)

// ManagerType identifies the daemon that owns the resolver file, if any
type ManagerType int

const (
	// UnknownManager indicates the file could not be inspected
	UnknownManager ManagerType = iota
	// SystemdResolvedManager indicates systemd-resolved generated the file
	SystemdResolvedManager
	// NetworkManagerManager indicates NetworkManager generated the file
	NetworkManagerManager
	// ResolvconfManager indicates resolvconf generated the file
	ResolvconfManager
	// FileManager indicates the file is edited directly
	FileManager
)

// String returns a human-readable name for the manager type
func (m ManagerType) String() string {
	switch m {
	case SystemdResolvedManager:
		return "systemd-resolved"
	case NetworkManagerManager:
		return "NetworkManager"
	case ResolvconfManager:
		return "resolvconf"
	case FileManager:
		return "file"
	default:
		return "unknown"
	}
}

// DetectManagerFromFile reads the leading comment block of a resolver file
// and returns the manager whose signature it carries
func DetectManagerFromFile(path string) ManagerType {
	file, err := os.Open(path)
	if err != nil {
		return UnknownManager
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if len(text) == 0 {
			continue
		}

		// The header ends at the first directive
		if text[0] != '#' && text[0] != ';' {
			return FileManager
		}

		if strings.Contains(text, "NetworkManager") {
			return NetworkManagerManager
		}

		if strings.Contains(text, "systemd-resolved") {
			return SystemdResolvedManager
		}

		if strings.Contains(text, "resolvconf") {
			return ResolvconfManager
		}
	}

	if err := scanner.Err(); err != nil {
		return UnknownManager
	}

	return FileManager
}
