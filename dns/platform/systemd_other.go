//go:build !linux || android

package platform

func flushSystemResolver() {}

// IsSystemdResolvedAvailable always reports false off Linux
func IsSystemdResolvedAvailable() bool {
	return false
}
