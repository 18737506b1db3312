package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fosrl/dnsutility/dns/backup"
	"github.com/fosrl/dnsutility/dns/override"
	"github.com/fosrl/dnsutility/dns/platform"
	"github.com/fosrl/newt/logger"
	"github.com/spf13/cobra"
)

var utilityVersion = "version_replaceme"

// Exit codes
const (
	exitOK                = 0
	exitFailure           = 1
	exitPermissionDenied  = 2
	exitInconsistentState = 3
)

var (
	config     *DNSUtilityConfig
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:   "dns-utility",
		Short: "Subvert and revert the host DNS resolver configuration",
		Long: `dns-utility points the resolver configuration of the active network
interface at a controlled resolver and restores the original configuration
on demand.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadRuntimeConfig,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print whether DNS is Subverted, Reverted or Unknown",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	subvertCmd = &cobra.Command{
		Use:   "subvert",
		Short: "Back up the current resolvers and point DNS at the target",
		Args:  cobra.NoArgs,
		RunE:  runSubvert,
	}

	revertCmd = &cobra.Command{
		Use:   "revert",
		Short: "Restore the resolvers saved by subvert",
		Args:  cobra.NoArgs,
		RunE:  runRevert,
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect",
		Short: "Show the adapter, interfaces, live resolvers and backup",
		Args:  cobra.NoArgs,
		RunE:  runInspect,
	}

	showConfigCmd = &cobra.Command{
		Use:   "show-config",
		Short: "Show configuration values and where they came from",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			config.ShowConfig(cmd.OutOrStdout())
		},
	}

	versionCmd = &cobra.Command{
		Use:               "version",
		Short:             "Print the version",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "dns-utility version "+utilityVersion)
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("target", defaultTarget, "Comma separated resolver addresses to subvert to")
	flags.String("backup-path", "", "Location of the backup of the original resolvers")
	flags.String("backup-store", backup.KindFile, "Backup store: file or bolt")
	flags.String("resolv-conf", defaultResolvConf, "Resolver file to manage on POSIX hosts")
	flags.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR, FATAL)")

	inspectCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(subvertCmd)
	rootCmd.AddCommand(revertCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(showConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	log := logger.NewLoggerWithWriter(newLogrusWriter(os.Stderr))
	log.SetLevel(logger.INFO)
	logger.Init(log)
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		reportError(stderr, err)
		return exitCode(err)
	}
	return exitOK
}

// loadRuntimeConfig loads the layered configuration and applies the log level
func loadRuntimeConfig(cmd *cobra.Command, args []string) error {
	var err error
	config, err = LoadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	logger.GetLogger().SetLevel(parseLogLevel(config.LogLevel))
	logger.Debug("dns-utility version %s", utilityVersion)
	return nil
}

// newController builds the controller for the current host from config
func newController() (*override.Controller, error) {
	target, err := config.TargetResolvers()
	if err != nil {
		return nil, err
	}

	adapter, err := platform.DetectAdapter(platform.Options{ResolvConfPath: config.ResolvConf})
	if err != nil {
		return nil, fmt.Errorf("failed to create platform adapter: %w", err)
	}
	logger.Debug("Using %s platform adapter", adapter.Name())

	store, err := backup.Open(config.BackupStore, config.BackupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup store: %w", err)
	}

	return override.NewController(adapter, store, target)
}

func runStatus(cmd *cobra.Command, args []string) error {
	controller, err := newController()
	if err != nil {
		return err
	}

	state, err := controller.Status()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), state)
	return nil
}

func runSubvert(cmd *cobra.Command, args []string) error {
	controller, err := newController()
	if err != nil {
		return err
	}

	if err := controller.Subvert(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), override.Subverted)
	return nil
}

func runRevert(cmd *cobra.Command, args []string) error {
	controller, err := newController()
	if err != nil {
		return err
	}

	if err := controller.Revert(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), override.Reverted)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	controller, err := newController()
	if err != nil {
		return err
	}

	report, err := controller.Inspect()
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printReport(cmd.OutOrStdout(), report)
	return nil
}

// printReport renders an inspect report for a terminal
func printReport(w io.Writer, report override.Report) {
	fmt.Fprintf(w, "State:            %s\n", report.State)
	fmt.Fprintf(w, "Adapter:          %s\n", report.Adapter)
	fmt.Fprintf(w, "Active interface: %s\n", report.Interface)
	fmt.Fprintf(w, "Live resolvers:   %s\n", report.Live)
	fmt.Fprintf(w, "Target resolvers: %s\n", report.Target)

	if report.Backup != nil {
		fmt.Fprintln(w, "Backup:")
		fmt.Fprintf(w, "  id:             %s\n", report.Backup.ID)
		fmt.Fprintf(w, "  resolvers:      %s\n", report.Backup.Servers)
		fmt.Fprintf(w, "  interface:      %s\n", report.Backup.Interface)
		fmt.Fprintf(w, "  adapter:        %s\n", report.Backup.Adapter)
		fmt.Fprintf(w, "  created:        %s\n", report.Backup.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Fprintln(w, "Backup:           none")
	}

	if len(report.Interfaces) > 0 {
		names := make([]string, 0, len(report.Interfaces))
		for _, iface := range report.Interfaces {
			names = append(names, iface.String())
		}
		fmt.Fprintf(w, "Interfaces:       %s\n", strings.Join(names, ", "))
	}
}

func reportError(w io.Writer, err error) {
	kind := override.KindOf(err)
	fmt.Fprintf(w, "Error: %v\n", err)
	if hint := kind.Hint(); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	switch override.KindOf(err) {
	case override.KindNone:
		return exitOK
	case override.KindPermissionDenied:
		return exitPermissionDenied
	case override.KindInconsistentState:
		return exitInconsistentState
	default:
		return exitFailure
	}
}
