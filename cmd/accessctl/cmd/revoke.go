package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spokestack/accessctl/internal/domain/access"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Remove a grant",
	Long: `Revoke removes a user's grant of a policy. The revoked state is
captured in the audit trail before removal, and the same notification
fan-out as assignment fires.

Example:
  accessctl revoke --org acme --actor lead-1 --policy <id> --user staff-7`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithActor(cmd, revokeOrg, revokeActor, func(a *app, actor access.Actor) error {
			if err := a.registry.Revoke(cmd.Context(), actor, revokePolicyID, revokeUserID); err != nil {
				return err
			}
			fmt.Printf("grant of %s to %s revoked\n", revokePolicyID, revokeUserID)
			return nil
		})
	},
}

var (
	revokeOrg      string
	revokeActor    string
	revokePolicyID string
	revokeUserID   string
)

func init() {
	revokeCmd.Flags().StringVar(&revokeOrg, "org", "", "organization ID (required)")
	revokeCmd.Flags().StringVar(&revokeActor, "actor", "", "acting user ID (required)")
	revokeCmd.Flags().StringVar(&revokePolicyID, "policy", "", "policy ID (required)")
	revokeCmd.Flags().StringVar(&revokeUserID, "user", "", "granted user ID (required)")
	_ = revokeCmd.MarkFlagRequired("org")
	_ = revokeCmd.MarkFlagRequired("actor")
	_ = revokeCmd.MarkFlagRequired("policy")
	_ = revokeCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(revokeCmd)
}
