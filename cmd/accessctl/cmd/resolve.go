package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spokestack/accessctl/internal/domain/access"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Evaluate an access decision",
	Long: `Resolve answers "may this actor perform this action on this resource?".

The actor's effective policies are scanned in priority order; the first
rule matching the resource/action pair (with its condition holding)
decides. When no rule matches, the static role-hierarchy default for
the resource/action pair applies. A denial is a normal answer, not an
error, and resolving never writes to the audit trail.

Examples:
  # A plain decision against the role hierarchy
  accessctl resolve --org acme --actor staff-7 --resource clients --action list

  # Ownership conditions need a target
  accessctl resolve --org acme --actor free-3 --resource briefs --action edit \
    --target-id brief-9 --target-owner free-3

  # Expression conditions can read arbitrary target attributes
  accessctl resolve --org acme --actor staff-7 --resource clients --action show \
    --target-id client-2 --target-attr tier=priority`,
	RunE: runResolve,
}

var (
	resolveOrg        string
	resolveActor      string
	resolveResource   string
	resolveAction     string
	resolveTargetID   string
	resolveOwner      string
	resolveDepartment string
	resolveAttrs      []string
)

func init() {
	resolveCmd.Flags().StringVar(&resolveOrg, "org", "", "organization ID (required)")
	resolveCmd.Flags().StringVar(&resolveActor, "actor", "", "acting user ID (required)")
	resolveCmd.Flags().StringVar(&resolveResource, "resource", "", "resource type, e.g. briefs (required)")
	resolveCmd.Flags().StringVar(&resolveAction, "action", "", "action, e.g. edit (required)")
	resolveCmd.Flags().StringVar(&resolveTargetID, "target-id", "", "target entity ID")
	resolveCmd.Flags().StringVar(&resolveOwner, "target-owner", "", "target owner user ID")
	resolveCmd.Flags().StringVar(&resolveDepartment, "target-department", "", "target department")
	resolveCmd.Flags().StringArrayVar(&resolveAttrs, "target-attr", nil, "target attribute as key=value (repeatable)")
	_ = resolveCmd.MarkFlagRequired("org")
	_ = resolveCmd.MarkFlagRequired("actor")
	_ = resolveCmd.MarkFlagRequired("resource")
	_ = resolveCmd.MarkFlagRequired("action")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	actor, err := a.actor(ctx, resolveOrg, resolveActor)
	if err != nil {
		return err
	}
	target, err := buildTarget()
	if err != nil {
		return err
	}

	decision, err := a.resolver.Resolve(ctx, actor, resolveResource, resolveAction, target)
	if err != nil {
		return err
	}
	return printJSON(decision)
}

func buildTarget() (*access.TargetEntity, error) {
	if resolveTargetID == "" && resolveOwner == "" && resolveDepartment == "" && len(resolveAttrs) == 0 {
		return nil, nil
	}
	t := &access.TargetEntity{
		ID:         resolveTargetID,
		OwnerID:    resolveOwner,
		Department: resolveDepartment,
	}
	for _, kv := range resolveAttrs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --target-attr %q: expected key=value", kv)
		}
		if t.Attributes == nil {
			t.Attributes = make(map[string]string)
		}
		t.Attributes[k] = v
	}
	return t, nil
}
