package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spokestack/accessctl/internal/domain/access"
	"github.com/spokestack/accessctl/internal/service"
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Grant a policy to a user",
	Long: `Assign grants an approved policy's rules to a user. The reason is
mandatory and becomes part of the audit record; an optional expiry
makes the grant temporary. The granted user and their team lead are
notified.

Examples:
  accessctl assign --org acme --actor lead-1 --policy <id> --user staff-7 \
    --reason "quarterly access review grant"

  accessctl assign --org acme --actor lead-1 --policy <id> --user free-3 \
    --reason "contract engagement through Q3" --expires 2026-09-30T23:59:59Z

  accessctl assign list --org acme --actor lead-1 --user staff-7`,
	Args: cobra.NoArgs,
	RunE: runAssign,
}

var (
	assignOrg      string
	assignActor    string
	assignPolicyID string
	assignUserID   string
	assignReason   string
	assignCase     string
	assignExpires  string
)

var assignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's effective grants, highest priority first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithActor(cmd, assignOrg, assignActor, func(a *app, actor access.Actor) error {
			effective, err := a.registry.ListEffective(cmd.Context(), assignOrg, assignUserID, time.Now().UTC())
			if err != nil {
				return err
			}
			return printJSON(effective)
		})
	},
}

func init() {
	assignCmd.PersistentFlags().StringVar(&assignOrg, "org", "", "organization ID (required)")
	assignCmd.PersistentFlags().StringVar(&assignActor, "actor", "", "acting user ID (required)")
	assignCmd.PersistentFlags().StringVar(&assignUserID, "user", "", "granted user ID (required)")
	_ = assignCmd.MarkPersistentFlagRequired("org")
	_ = assignCmd.MarkPersistentFlagRequired("actor")
	_ = assignCmd.MarkPersistentFlagRequired("user")

	assignCmd.Flags().StringVar(&assignPolicyID, "policy", "", "policy ID (required)")
	assignCmd.Flags().StringVar(&assignReason, "reason", "", "justification for the grant (required)")
	assignCmd.Flags().StringVar(&assignCase, "business-case", "", "business case reference")
	assignCmd.Flags().StringVar(&assignExpires, "expires", "", "expiry as RFC 3339, e.g. 2026-09-30T23:59:59Z")

	assignCmd.AddCommand(assignListCmd)
	rootCmd.AddCommand(assignCmd)
}

func runAssign(cmd *cobra.Command, args []string) error {
	return runWithActor(cmd, assignOrg, assignActor, func(a *app, actor access.Actor) error {
		in := service.AssignInput{
			PolicyID:     assignPolicyID,
			UserID:       assignUserID,
			Reason:       assignReason,
			BusinessCase: assignCase,
		}
		if assignExpires != "" {
			t, err := time.Parse(time.RFC3339, assignExpires)
			if err != nil {
				return fmt.Errorf("invalid --expires %q: %w", assignExpires, err)
			}
			in.ExpiresAt = &t
		}
		grant, err := a.registry.Assign(cmd.Context(), actor, in)
		if err != nil {
			return err
		}
		return printJSON(grant)
	})
}
