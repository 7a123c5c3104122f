package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spokestack/accessctl/internal/domain/access"
	"github.com/spokestack/accessctl/internal/service"
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage permission rules on a policy",
	Long: `A rule states what one policy says about one (resource, action)
pair: ALLOW or DENY, optionally guarded by a condition and, for ALLOW,
a field-visibility mask. One statement per pair; upserting the same
pair replaces it in place.

Examples:
  accessctl rule upsert --org acme --actor lead-1 --policy <id> \
    --resource briefs --action edit --effect ALLOW --condition OWNER_ONLY

  accessctl rule upsert --org acme --actor lead-1 --policy <id> \
    --resource clients --action show --effect ALLOW \
    --allowed-fields name,email,status --denied-fields budget

  accessctl rule upsert --org acme --actor lead-1 --policy <id> \
    --resource reports --action export --effect ALLOW \
    --condition EXPRESSION --param expression='target["tier"] == "priority"'

  accessctl rule delete --org acme --actor lead-1 --policy <id> <rule-id>`,
}

var (
	ruleOrg      string
	ruleActor    string
	rulePolicyID string

	ruleResource      string
	ruleAction        string
	ruleEffect        string
	ruleCondition     string
	ruleParams        []string
	ruleAllowedFields []string
	ruleDeniedFields  []string
)

var ruleUpsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Add or replace the statement for a resource/action pair",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithActor(cmd, ruleOrg, ruleActor, func(a *app, actor access.Actor) error {
			params, err := parseParams(ruleParams)
			if err != nil {
				return err
			}
			in := service.RuleInput{
				Resource:        ruleResource,
				Action:          ruleAction,
				Effect:          access.Effect(strings.ToUpper(ruleEffect)),
				ConditionType:   access.ConditionType(ruleCondition),
				ConditionParams: params,
				AllowedFields:   ruleAllowedFields,
				DeniedFields:    ruleDeniedFields,
			}
			r, err := a.admin.UpsertRule(cmd.Context(), actor, rulePolicyID, in)
			if err != nil {
				return err
			}
			return printJSON(r)
		})
	},
}

var ruleDeleteCmd = &cobra.Command{
	Use:   "delete <rule-id>",
	Short: "Delete a rule from a policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithActor(cmd, ruleOrg, ruleActor, func(a *app, actor access.Actor) error {
			if err := a.admin.DeleteRule(cmd.Context(), actor, rulePolicyID, args[0]); err != nil {
				return err
			}
			fmt.Printf("rule %s deleted\n", args[0])
			return nil
		})
	},
}

func init() {
	ruleCmd.PersistentFlags().StringVar(&ruleOrg, "org", "", "organization ID (required)")
	ruleCmd.PersistentFlags().StringVar(&ruleActor, "actor", "", "acting user ID (required)")
	ruleCmd.PersistentFlags().StringVar(&rulePolicyID, "policy", "", "policy ID (required)")
	_ = ruleCmd.MarkPersistentFlagRequired("org")
	_ = ruleCmd.MarkPersistentFlagRequired("actor")
	_ = ruleCmd.MarkPersistentFlagRequired("policy")

	ruleUpsertCmd.Flags().StringVar(&ruleResource, "resource", "", "resource type (required)")
	ruleUpsertCmd.Flags().StringVar(&ruleAction, "action", "", "action (required)")
	ruleUpsertCmd.Flags().StringVar(&ruleEffect, "effect", "", "ALLOW or DENY (required)")
	ruleUpsertCmd.Flags().StringVar(&ruleCondition, "condition", "", "condition type: OWNER_ONLY, SAME_DEPARTMENT, TIME_WINDOW, EXPRESSION, CUSTOM")
	ruleUpsertCmd.Flags().StringArrayVar(&ruleParams, "param", nil, "condition parameter as key=value (repeatable)")
	ruleUpsertCmd.Flags().StringSliceVar(&ruleAllowedFields, "allowed-fields", nil, "field mask inclusion list")
	ruleUpsertCmd.Flags().StringSliceVar(&ruleDeniedFields, "denied-fields", nil, "field mask denial list")
	_ = ruleUpsertCmd.MarkFlagRequired("resource")
	_ = ruleUpsertCmd.MarkFlagRequired("action")
	_ = ruleUpsertCmd.MarkFlagRequired("effect")

	ruleCmd.AddCommand(ruleUpsertCmd, ruleDeleteCmd)
	rootCmd.AddCommand(ruleCmd)
}

func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", kv)
		}
		params[k] = v
	}
	return params, nil
}
