//go:build darwin && !ios

package platform

import (
	"fmt"
	"os/exec"
	"strings"
)

const (
	scutilPath      = "/usr/sbin/scutil"
	dscacheutilPath = "/usr/bin/dscacheutil"
)

// NewDarwinAdapter creates a new macOS adapter backed by scutil
func NewDarwinAdapter() *DarwinAdapter {
	return &DarwinAdapter{
		run:         runScutil,
		flush:       flushDNSCache,
		requireRoot: true,
	}
}

// DetectAdapter returns the macOS dynamic store adapter
func DetectAdapter(opts Options) (Adapter, error) {
	return NewDarwinAdapter(), nil
}

// runScutil executes an scutil command
func runScutil(commands string) ([]byte, error) {
	// Wrap commands with open/quit
	wrapped := fmt.Sprintf("open\n%squit\n", commands)

	cmd := exec.Command(scutilPath)
	cmd.Stdin = strings.NewReader(wrapped)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("scutil command failed: %w, output: %s", err, output)
	}

	return output, nil
}

// flushDNSCache flushes the system DNS cache
func flushDNSCache() error {
	cmd := exec.Command(dscacheutilPath, "-flushcache")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}

	// mDNSResponder might not be running
	_ = exec.Command("killall", "-HUP", "mDNSResponder").Run()

	return nil
}
