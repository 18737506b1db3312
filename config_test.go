package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fosrl/dnsutility/dns/platform"
	"github.com/fosrl/newt/logger"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateConfig points the config file at a temp location and clears the
// environment variables LoadConfig reads
func isolateConfig(t *testing.T, fileContent string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	if fileContent != "" {
		require.NoError(t, os.WriteFile(path, []byte(fileContent), 0o600))
	}
	t.Setenv("CONFIG_FILE", path)

	for _, key := range []string{
		"DNS_UTILITY_TARGET",
		"DNS_UTILITY_BACKUP_PATH",
		"DNS_UTILITY_BACKUP_STORE",
		"DNS_UTILITY_RESOLV_CONF",
		"LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	return path
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("target", defaultTarget, "")
	flags.String("backup-path", "", "")
	flags.String("backup-store", "file", "")
	flags.String("resolv-conf", defaultResolvConf, "")
	flags.String("log-level", "INFO", "")
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoadConfigDefaults(t *testing.T) {
	isolateConfig(t, "")

	config, err := LoadConfig(testFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", config.Target)
	assert.Equal(t, "file", config.BackupStore)
	assert.Equal(t, "/etc/resolv.conf", config.ResolvConf)
	assert.Equal(t, "INFO", config.LogLevel)
	assert.Equal(t, "backup.json", filepath.Base(config.BackupPath))
	assert.Equal(t, string(SourceDefault), config.sources["target"])

	target, err := config.TargetResolvers()
	require.NoError(t, err)
	assert.Equal(t, platform.MustParseResolverConfig("127.0.0.1"), target)
}

func TestLoadConfigPriority(t *testing.T) {
	isolateConfig(t, `{"target": "10.0.0.53", "backupStore": "bolt", "logLevel": "debug", "resolvConf": "/tmp/file-resolv.conf"}`)
	t.Setenv("DNS_UTILITY_TARGET", "10.1.1.1, 10.1.1.2")
	t.Setenv("LOG_LEVEL", "warning")

	config, err := LoadConfig(testFlags(t, "--target", "192.0.2.1"))
	require.NoError(t, err)

	assert.Equal(t, "192.0.2.1", config.Target)
	assert.Equal(t, string(SourceCLI), config.sources["target"])

	assert.Equal(t, "WARN", config.LogLevel)
	assert.Equal(t, string(SourceEnv), config.sources["logLevel"])

	assert.Equal(t, "bolt", config.BackupStore)
	assert.Equal(t, string(SourceFile), config.sources["backupStore"])
	assert.Equal(t, "/tmp/file-resolv.conf", config.ResolvConf)
	assert.Equal(t, "backup.db", filepath.Base(config.BackupPath), "default path follows the store kind")
	assert.Equal(t, string(SourceDefault), config.sources["backupPath"])
}

func TestLoadConfigEnvTargetList(t *testing.T) {
	isolateConfig(t, "")
	t.Setenv("DNS_UTILITY_TARGET", "127.0.0.1, ::1")
	t.Setenv("DNS_UTILITY_BACKUP_PATH", "/srv/backup.json")

	config, err := LoadConfig(nil)
	require.NoError(t, err)

	target, err := config.TargetResolvers()
	require.NoError(t, err)
	assert.Equal(t, platform.MustParseResolverConfig("127.0.0.1", "::1"), target)
	assert.Equal(t, "/srv/backup.json", config.BackupPath)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		file string
		args []string
	}{
		{name: "bad target", args: []string{"--target", "not-an-ip"}},
		{name: "empty target list", args: []string{"--target", " , "}},
		{name: "unknown store", args: []string{"--backup-store", "sqlite"}},
		{name: "unknown log level", args: []string{"--log-level", "chatty"}},
		{name: "empty backup path", args: []string{"--backup-path", ""}},
		{name: "malformed file", file: `{"target": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfig(t, tt.file)
			_, err := LoadConfig(testFlags(t, tt.args...))
			assert.Error(t, err)
		})
	}
}

func TestShowConfig(t *testing.T) {
	isolateConfig(t, "")
	t.Setenv("DNS_UTILITY_TARGET", "10.9.9.9")

	config, err := LoadConfig(nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	config.ShowConfig(&buf)
	out := buf.String()
	assert.Contains(t, out, "target       = 10.9.9.9 [environment]")
	assert.Contains(t, out, "backup-store = file [default]")
	assert.Contains(t, out, "not found")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.LogLevel
	}{
		{"debug", logger.DEBUG},
		{"INFO", logger.INFO},
		{" warn ", logger.WARN},
		{"warning", logger.WARN},
		{"Error", logger.ERROR},
		{"FATAL", logger.FATAL},
		{"", logger.INFO},
		{"verbose", logger.INFO},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}
