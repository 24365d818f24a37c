package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	Socket     string
	Timeout    time.Duration
}

// InstallFlags holds flags for the install command.
type InstallFlags struct {
	File string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	installFlags := &InstallFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(globalFlags),
		createDiscoveryCommand(globalFlags),
		createStartCommand(globalFlags),
		createStopCommand(globalFlags),
		createRestartCommand(globalFlags),
		createClearErrorCommand(globalFlags),
		createInstallCommand(globalFlags, installFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "linch-mind",
		Short: "Personal data connector daemon",
		Long: `Linch Mind supervises local data connector processes and exposes a
length-prefixed JSON IPC control channel over a unix socket (named pipe on
Windows).

Examples:
  linch-mind serve                        # Start the daemon
  linch-mind status                       # Show all connector statuses
  linch-mind start filesystem             # Start one connector
  linch-mind install --file=conn.json     # Register a connector`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.Socket, "socket", "", "daemon socket path (overrides config)")
	root.PersistentFlags().DurationVar(&flags.Timeout, "timeout", 10*time.Second, "IPC request timeout")
	return root
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the daemon",
		Long: `Start the daemon: bind the IPC socket, restore registered connectors,
and run the health monitor until SIGINT/SIGTERM.

Examples:
  linch-mind serve
  linch-mind serve config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return runServe(configPath, globalFlags.Socket)
		},
	}
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [connector-id]",
		Short: "Show connector status",
		Long: `Show runtime status of connectors managed by the daemon.

Examples:
  linch-mind status               # All connectors
  linch-mind status filesystem    # One connector`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newCLI(globalFlags)
			if len(args) == 1 {
				return c.statusOne(args[0])
			}
			return c.statusAll()
		},
	}
}

func createDiscoveryCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "discovery",
		Short: "List registered connector descriptors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCLI(globalFlags).discovery()
		},
	}
}

func createStartCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start <connector-id>",
		Short: "Start a connector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCLI(globalFlags).lifecycle(args[0], "start")
		},
	}
}

func createStopCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <connector-id>",
		Short: "Stop a connector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCLI(globalFlags).lifecycle(args[0], "stop")
		},
	}
}

func createRestartCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <connector-id>",
		Short: "Restart a connector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCLI(globalFlags).lifecycle(args[0], "restart")
		},
	}
}

func createClearErrorCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-error <connector-id>",
		Short: "Return an errored connector to stopped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCLI(globalFlags).lifecycle(args[0], "clear-error")
		},
	}
}

func createInstallCommand(globalFlags *GlobalFlags, installFlags *InstallFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Register a connector from a JSON descriptor",
		Long: `Register a connector with the daemon from a descriptor file.

Descriptor example:
{
  "id": "filesystem",
  "display_name": "Filesystem Watcher",
  "version": "1.2.0",
  "production_paths": {"linux": "bin/linch-mind-filesystem"},
  "enabled": true
}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCLI(globalFlags).install(installFlags.File)
		},
	}
	cmd.Flags().StringVar(&installFlags.File, "file", "", "path to descriptor JSON (required)")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}
	return cmd
}
