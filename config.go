package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"dario.cat/mergo"
	"github.com/fosrl/dnsutility/dns/backup"
	"github.com/fosrl/dnsutility/dns/platform"
	"github.com/fosrl/newt/logger"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
)

// DNSUtilityConfig holds all configuration options for dns-utility
type DNSUtilityConfig struct {
	// Resolver list the host is subverted to, comma separated
	Target string `json:"target" validate:"required,iplist"`

	// Backup settings
	BackupPath  string `json:"backupPath" validate:"required"`
	BackupStore string `json:"backupStore" validate:"oneof=file bolt"`

	// Resolver file managed on POSIX hosts
	ResolvConf string `json:"resolvConf" validate:"required"`

	// Logging
	LogLevel string `json:"logLevel" validate:"oneof=DEBUG INFO WARN ERROR FATAL"`

	// Source tracking (not in JSON)
	sources    map[string]string
	configPath string
}

// ConfigSource tracks where each config value came from
type ConfigSource string

const (
	SourceDefault ConfigSource = "default"
	SourceFile    ConfigSource = "file"
	SourceEnv     ConfigSource = "environment"
	SourceCLI     ConfigSource = "cli"
)

const (
	defaultTarget     = "127.0.0.1"
	defaultResolvConf = "/etc/resolv.conf"
)

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("iplist", validateIPList)
}

// validateIPList accepts a comma separated list of IP literals
func validateIPList(fl validator.FieldLevel) bool {
	parts := strings.Split(fl.Field().String(), ",")
	count := 0
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, err := netip.ParseAddr(part); err != nil {
			return false
		}
		count++
	}
	return count > 0
}

// DefaultConfig returns a config with default values
func DefaultConfig() *DNSUtilityConfig {
	config := &DNSUtilityConfig{
		Target:      defaultTarget,
		BackupPath:  defaultBackupPath(backup.KindFile),
		BackupStore: backup.KindFile,
		ResolvConf:  defaultResolvConf,
		LogLevel:    "INFO",
		sources:     make(map[string]string),
	}

	// Track default sources
	config.sources["target"] = string(SourceDefault)
	config.sources["backupPath"] = string(SourceDefault)
	config.sources["backupStore"] = string(SourceDefault)
	config.sources["resolvConf"] = string(SourceDefault)
	config.sources["logLevel"] = string(SourceDefault)

	return config
}

// getConfigDir returns the config directory path
func getConfigDir() string {
	configDir := os.Getenv("CONFIG_DIR")
	if configDir != "" {
		return configDir
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "dns-utility")
	case "windows":
		return filepath.Join(os.Getenv("PROGRAMDATA"), "dns-utility")
	default: // linux and others
		return filepath.Join(os.Getenv("HOME"), ".config", "dns-utility")
	}
}

// getConfigPath returns the path to the config file
func getConfigPath() string {
	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		return configFile
	}
	return filepath.Join(getConfigDir(), "config.json")
}

// defaultBackupDir is machine wide so the backup survives a change of user
// and a reinstall
func defaultBackupDir() string {
	switch runtime.GOOS {
	case "darwin":
		return "/Library/Application Support/dns-utility"
	case "windows":
		return filepath.Join(os.Getenv("PROGRAMDATA"), "dns-utility")
	default:
		return "/var/lib/dns-utility"
	}
}

func defaultBackupPath(kind string) string {
	name := "backup.json"
	if kind == backup.KindBolt {
		name = "backup.db"
	}
	return filepath.Join(defaultBackupDir(), name)
}

// LoadConfig loads configuration from file, env vars, and CLI flags
// Priority: CLI flags > Env vars > Config file > Defaults
func LoadConfig(flags *pflag.FlagSet) (*DNSUtilityConfig, error) {
	// Start with defaults
	config := DefaultConfig()
	config.configPath = getConfigPath()

	// Load from config file (if exists)
	fileConfig, err := loadConfigFromFile(config.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if fileConfig != nil {
		if err := mergeConfigs(config, fileConfig); err != nil {
			return nil, err
		}
	}

	// Override with environment variables
	loadConfigFromEnv(config)

	// Override with CLI flags
	if flags != nil {
		if err := loadConfigFromFlags(config, flags); err != nil {
			return nil, err
		}
	}

	config.normalize()

	if err := configValidate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile loads configuration from the JSON config file
func loadConfigFromFile(configPath string) (*DNSUtilityConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil // File doesn't exist, not an error
		}
		return nil, err
	}

	var config DNSUtilityConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// mergeConfigs merges the non-empty values of src into dest and records
// that they came from the config file
func mergeConfigs(dest, src *DNSUtilityConfig) error {
	if err := mergo.Merge(dest, *src, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config file: %w", err)
	}

	for key, value := range map[string]string{
		"target":      src.Target,
		"backupPath":  src.BackupPath,
		"backupStore": src.BackupStore,
		"resolvConf":  src.ResolvConf,
		"logLevel":    src.LogLevel,
	} {
		if value != "" {
			dest.sources[key] = string(SourceFile)
		}
	}

	return nil
}

// loadConfigFromEnv loads configuration from environment variables
func loadConfigFromEnv(config *DNSUtilityConfig) {
	if val := os.Getenv("DNS_UTILITY_TARGET"); val != "" {
		config.Target = val
		config.sources["target"] = string(SourceEnv)
	}
	if val := os.Getenv("DNS_UTILITY_BACKUP_PATH"); val != "" {
		config.BackupPath = val
		config.sources["backupPath"] = string(SourceEnv)
	}
	if val := os.Getenv("DNS_UTILITY_BACKUP_STORE"); val != "" {
		config.BackupStore = val
		config.sources["backupStore"] = string(SourceEnv)
	}
	if val := os.Getenv("DNS_UTILITY_RESOLV_CONF"); val != "" {
		config.ResolvConf = val
		config.sources["resolvConf"] = string(SourceEnv)
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.LogLevel = val
		config.sources["logLevel"] = string(SourceEnv)
	}
}

// loadConfigFromFlags applies the flags that were set on the command line
func loadConfigFromFlags(config *DNSUtilityConfig, flags *pflag.FlagSet) error {
	for flagName, key := range map[string]string{
		"target":       "target",
		"backup-path":  "backupPath",
		"backup-store": "backupStore",
		"resolv-conf":  "resolvConf",
		"log-level":    "logLevel",
	} {
		if flags.Lookup(flagName) == nil || !flags.Changed(flagName) {
			continue
		}

		val, err := flags.GetString(flagName)
		if err != nil {
			return err
		}

		switch key {
		case "target":
			config.Target = val
		case "backupPath":
			config.BackupPath = val
		case "backupStore":
			config.BackupStore = val
		case "resolvConf":
			config.ResolvConf = val
		case "logLevel":
			config.LogLevel = val
		}
		config.sources[key] = string(SourceCLI)
	}

	return nil
}

// normalize canonicalizes values before validation
func (c *DNSUtilityConfig) normalize() {
	c.BackupStore = strings.ToLower(strings.TrimSpace(c.BackupStore))
	c.LogLevel = strings.ToUpper(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "WARNING" {
		c.LogLevel = "WARN"
	}

	// A bolt store with the default path gets its own file name
	if c.sources["backupPath"] == string(SourceDefault) {
		c.BackupPath = defaultBackupPath(c.BackupStore)
	}
}

// parseLogLevel maps a configured level name onto the logger's levels.
// Unknown names fall back to INFO.
func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return logger.DEBUG
	case "WARN", "WARNING":
		return logger.WARN
	case "ERROR":
		return logger.ERROR
	case "FATAL":
		return logger.FATAL
	default:
		return logger.INFO
	}
}

// TargetResolvers parses the configured target into a resolver list
func (c *DNSUtilityConfig) TargetResolvers() (platform.ResolverConfig, error) {
	return platform.ParseResolverConfig(strings.Split(c.Target, ","))
}

// ShowConfig prints the configuration and the source of each value
func (c *DNSUtilityConfig) ShowConfig(w io.Writer) {
	fmt.Fprintln(w, "\n=== dns-utility Configuration ===")
	fmt.Fprintf(w, "\nConfig File: %s\n", c.configPath)

	// Check if config file exists
	if _, err := os.Stat(c.configPath); err == nil {
		fmt.Fprintf(w, "Config File Status: ✓ exists\n")
	} else {
		fmt.Fprintf(w, "Config File Status: ✗ not found\n")
	}

	fmt.Fprintln(w, "\n--- Configuration Values ---")
	fmt.Fprintln(w, "(Format: Setting = Value [source])")

	getSource := func(key string) string {
		if source, ok := c.sources[key]; ok {
			return source
		}
		return string(SourceDefault)
	}

	fmt.Fprintln(w, "\nResolvers:")
	fmt.Fprintf(w, "  target       = %s [%s]\n", c.Target, getSource("target"))
	fmt.Fprintf(w, "  resolv-conf  = %s [%s]\n", c.ResolvConf, getSource("resolvConf"))

	fmt.Fprintln(w, "\nBackup:")
	fmt.Fprintf(w, "  backup-store = %s [%s]\n", c.BackupStore, getSource("backupStore"))
	fmt.Fprintf(w, "  backup-path  = %s [%s]\n", c.BackupPath, getSource("backupPath"))

	fmt.Fprintln(w, "\nLogging:")
	fmt.Fprintf(w, "  log-level    = %s [%s]\n", c.LogLevel, getSource("logLevel"))

	// Source legend
	fmt.Fprintln(w, "\n--- Source Legend ---")
	fmt.Fprintln(w, "  default     = Built-in default value")
	fmt.Fprintln(w, "  file        = Loaded from config file")
	fmt.Fprintln(w, "  environment = Set via environment variable")
	fmt.Fprintln(w, "  cli         = Provided as command-line argument")
	fmt.Fprintln(w, "\nPriority: cli > environment > file > default")
	fmt.Fprintln(w)
}
