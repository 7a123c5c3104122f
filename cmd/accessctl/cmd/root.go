// Package cmd provides the CLI commands for accessctl.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spokestack/accessctl/internal/config"
)

var (
	cfgFile string
	devMode bool
)

var rootCmd = &cobra.Command{
	Use:   "accessctl",
	Short: "accessctl - organization access-control policy engine",
	Long: `accessctl manages organization-scoped access policies and answers
authorization questions against them.

Policies bundle per-resource permission rules, move through a
draft/submit/approve lifecycle, and are granted to users with a
mandatory justification. Decisions walk the actor's effective policies
in priority order; when nothing matches, a static role-hierarchy
default applies. Every mutation lands in the audit trail.

Configuration:
  Config is loaded from accessctl.yaml in the current directory,
  $HOME/.accessctl/, or /etc/accessctl/.

  Environment variables override config values with the ACCESSCTL_
  prefix. Example: ACCESSCTL_DATABASE_PATH=/var/lib/accessctl.db

Commands:
  policy      Manage policies and their lifecycle
  rule        Manage permission rules on a policy
  assign      Grant a policy to a user
  revoke      Remove a grant
  resolve     Evaluate an access decision
  audit       Query the audit trail
  user        Manage the identity mirror
  seed        Apply the default policy bundle to an organization
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./accessctl.yaml)")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "development mode: in-memory stores, stdout audit, debug logging")
}

func initConfig() {
	config.InitViper(cfgFile)
}
