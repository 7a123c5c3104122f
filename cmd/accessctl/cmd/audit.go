package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spokestack/accessctl/internal/domain/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit trail",
	Long: `Audit lists recorded management events, newest first. Every filter
is optional and they combine conjunctively. The database and file
audit outputs are queryable; stdout is write-only.

Examples:
  accessctl audit --org acme --limit 20
  accessctl audit --org acme --action policy.approve --since 2026-08-01T00:00:00Z
  accessctl audit --org acme --resource-id <policy-id>`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

var (
	auditOrg        string
	auditActorID    string
	auditAction     string
	auditResource   string
	auditResourceID string
	auditSince      string
	auditUntil      string
	auditLimit      int
)

func init() {
	auditCmd.Flags().StringVar(&auditOrg, "org", "", "organization ID (required)")
	auditCmd.Flags().StringVar(&auditActorID, "actor", "", "filter by acting user ID")
	auditCmd.Flags().StringVar(&auditAction, "action", "", "filter by action, e.g. policy.approve")
	auditCmd.Flags().StringVar(&auditResource, "resource", "", "filter by resource type, e.g. policy")
	auditCmd.Flags().StringVar(&auditResourceID, "resource-id", "", "filter by resource ID")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "lower bound as RFC 3339")
	auditCmd.Flags().StringVar(&auditUntil, "until", "", "upper bound as RFC 3339")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum entries returned")
	_ = auditCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.auditReader == nil {
		return fmt.Errorf("audit output %q is not queryable", a.cfg.Audit.Output)
	}

	f := audit.Filter{
		OrganizationID: auditOrg,
		ActorID:        auditActorID,
		Action:         auditAction,
		Resource:       auditResource,
		ResourceID:     auditResourceID,
		Limit:          auditLimit,
	}
	if auditSince != "" {
		t, err := time.Parse(time.RFC3339, auditSince)
		if err != nil {
			return fmt.Errorf("invalid --since %q: %w", auditSince, err)
		}
		f.Since = t
	}
	if auditUntil != "" {
		t, err := time.Parse(time.RFC3339, auditUntil)
		if err != nil {
			return fmt.Errorf("invalid --until %q: %w", auditUntil, err)
		}
		f.Until = t
	}

	entries, err := a.auditReader.Query(cmd.Context(), f)
	if err != nil {
		return err
	}
	return printJSON(entries)
}
