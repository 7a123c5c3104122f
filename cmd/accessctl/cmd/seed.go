package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spokestack/accessctl/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Apply the default policy bundle to an organization",
	Long: `Seed installs the built-in baseline policies (freelancer
containment, staff department visibility, the annual report window)
into an organization and approves them under the system actor.
Policies that already exist are left untouched, so seeding is safe to
repeat.

Example:
  accessctl seed --org acme`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := seed.Apply(cmd.Context(), a.admin, seedOrg, a.logger)
		if err != nil {
			return err
		}
		fmt.Printf("seeded %d policies into %s\n", n, seedOrg)
		return nil
	},
}

var seedOrg string

func init() {
	seedCmd.Flags().StringVar(&seedOrg, "org", "", "organization ID (required)")
	_ = seedCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(seedCmd)
}
