package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spokestack/accessctl/internal/domain/access"
	"github.com/spokestack/accessctl/internal/service"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage policies and their lifecycle",
	Long: `Policies are created in DRAFT, gather rules, and move through
submit/approve before their grants take effect. Rejection is terminal;
use clone to start a corrected draft.

Examples:
  accessctl policy create --org acme --actor lead-1 --name "freelancer containment" --priority 100
  accessctl policy submit --org acme --actor lead-1 <policy-id>
  accessctl policy approve --org acme --actor admin-1 <policy-id>
  accessctl policy list --org acme --actor staff-7`,
}

var (
	policyOrg   string
	policyActor string

	createName        string
	createDescription string
	createLevel       string
	createPriority    int

	rejectReason string
	cloneName    string
)

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the organization's policies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor(cmd, func(a *app, actor access.Actor) error {
			policies, err := a.admin.List(cmd.Context(), actor)
			if err != nil {
				return err
			}
			return printJSON(policies)
		})
	},
}

var policyShowCmd = &cobra.Command{
	Use:   "show <policy-id>",
	Short: "Show one policy with its rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor(cmd, func(a *app, actor access.Actor) error {
			p, err := a.admin.Get(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			return printJSON(p)
		})
	},
}

var policyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a policy in DRAFT",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor(cmd, func(a *app, actor access.Actor) error {
			in := service.CreatePolicyInput{
				Name:         createName,
				Description:  createDescription,
				DefaultLevel: access.PermissionLevel(createLevel),
			}
			if cmd.Flags().Changed("priority") {
				in.Priority = &createPriority
			}
			p, err := a.admin.Create(cmd.Context(), actor, in)
			if err != nil {
				return err
			}
			return printJSON(p)
		})
	},
}

var policySubmitCmd = &cobra.Command{
	Use:   "submit <policy-id>",
	Short: "Submit a draft for approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor(cmd, func(a *app, actor access.Actor) error {
			p, err := a.admin.Submit(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			return printJSON(p)
		})
	},
}

var policyApproveCmd = &cobra.Command{
	Use:   "approve <policy-id>",
	Short: "Approve a submitted policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor(cmd, func(a *app, actor access.Actor) error {
			p, err := a.admin.Approve(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			return printJSON(p)
		})
	},
}

var policyRejectCmd = &cobra.Command{
	Use:   "reject <policy-id>",
	Short: "Reject a submitted policy (terminal)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor(cmd, func(a *app, actor access.Actor) error {
			p, err := a.admin.Reject(cmd.Context(), actor, args[0], rejectReason)
			if err != nil {
				return err
			}
			return printJSON(p)
		})
	},
}

var policyCloneCmd = &cobra.Command{
	Use:   "clone <policy-id>",
	Short: "Clone a policy into a fresh draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor(cmd, func(a *app, actor access.Actor) error {
			p, err := a.admin.Clone(cmd.Context(), actor, args[0], cloneName)
			if err != nil {
				return err
			}
			return printJSON(p)
		})
	},
}

var policyDeleteCmd = &cobra.Command{
	Use:   "delete <policy-id>",
	Short: "Delete a policy and cascade its grants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor(cmd, func(a *app, actor access.Actor) error {
			if err := a.admin.Delete(cmd.Context(), actor, args[0]); err != nil {
				return err
			}
			fmt.Printf("policy %s deleted\n", args[0])
			return nil
		})
	},
}

var policyVersionsCmd = &cobra.Command{
	Use:   "versions <policy-id>",
	Short: "List the approved version snapshots, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActor(cmd, func(a *app, actor access.Actor) error {
			versions, err := a.admin.Versions(cmd.Context(), actor, args[0])
			if err != nil {
				return err
			}
			return printJSON(versions)
		})
	},
}

func init() {
	policyCmd.PersistentFlags().StringVar(&policyOrg, "org", "", "organization ID (required)")
	policyCmd.PersistentFlags().StringVar(&policyActor, "actor", "", "acting user ID (required)")
	_ = policyCmd.MarkPersistentFlagRequired("org")
	_ = policyCmd.MarkPersistentFlagRequired("actor")

	policyCreateCmd.Flags().StringVar(&createName, "name", "", "policy name, unique per organization (required)")
	policyCreateCmd.Flags().StringVar(&createDescription, "description", "", "free-form description")
	policyCreateCmd.Flags().StringVar(&createLevel, "default-level", "", "advisory default level (ADMIN..CLIENT)")
	policyCreateCmd.Flags().IntVar(&createPriority, "priority", service.DefaultPolicyPriority, "evaluation priority 0-1000, higher wins")
	_ = policyCreateCmd.MarkFlagRequired("name")

	policyRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "rejection reason (required)")
	_ = policyRejectCmd.MarkFlagRequired("reason")

	policyCloneCmd.Flags().StringVar(&cloneName, "name", "", "name for the cloned draft (required)")
	_ = policyCloneCmd.MarkFlagRequired("name")

	policyCmd.AddCommand(policyListCmd, policyShowCmd, policyCreateCmd, policySubmitCmd,
		policyApproveCmd, policyRejectCmd, policyCloneCmd, policyDeleteCmd, policyVersionsCmd)
	rootCmd.AddCommand(policyCmd)
}

func withActor(cmd *cobra.Command, fn func(a *app, actor access.Actor) error) error {
	return runWithActor(cmd, policyOrg, policyActor, fn)
}
