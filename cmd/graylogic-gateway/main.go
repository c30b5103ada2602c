// Gray Logic Gateway - device and client socket hub
//
// Devices (alarm clocks, water mixers) hold a socket open to the gateway
// and push telemetry; authenticated users hold a socket open to receive
// the live state of the devices they may access and to send actions.
//
// Subcommands:
//   - serve: run the gateway
//   - user, device, grant, revoke, token: manage the credential store
//   - audit: review credential changes and login attempts
//   - migrate: inspect or roll back the schema
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv overrides the default config path when --config is not given.
const configEnv = "GRAYLOGIC_GATEWAY_CONFIG"

func main() {
	// Cancelled on Ctrl+C or SIGTERM; serve treats that as shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "graylogic-gateway",
		Short:         "Gray Logic Gateway - socket hub for devices and clients",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $"+configEnv+" or "+defaultConfigPath+")")

	cfgPath := func() string { return resolveConfigPath(configPath) }

	root.AddCommand(
		newServeCmd(cfgPath),
		newUserCmd(cfgPath),
		newDeviceCmd(cfgPath),
		newGrantCmd(cfgPath, true),
		newGrantCmd(cfgPath, false),
		newTokenCmd(cfgPath),
		newAuditCmd(cfgPath),
		newMigrateCmd(cfgPath),
	)
	return root
}

// resolveConfigPath applies flag > environment > default.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}
