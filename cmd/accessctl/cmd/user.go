package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spokestack/accessctl/internal/domain/access"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the identity mirror",
	Long: `The engine reads identities (level, department, team lead) from a
local mirror rather than calling an identity provider on every
decision. The user command maintains that mirror.

Examples:
  accessctl user put --org acme --id staff-7 --name "Sam Ortiz" \
    --email sam@acme.test --level STAFF --department design --team-lead tl-2

  accessctl user show --org acme --id staff-7`,
}

var (
	userOrg        string
	userID         string
	userName       string
	userEmail      string
	userLevel      string
	userDepartment string
	userTeamLead   string
	userInactive   bool
)

var userPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Insert or update a mirrored user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		level := access.PermissionLevel(userLevel)
		if !level.Valid() {
			return fmt.Errorf("unknown level %q: one of %v", userLevel, access.Levels())
		}
		u := &access.User{
			ID:             userID,
			OrganizationID: userOrg,
			Name:           userName,
			Email:          userEmail,
			Department:     userDepartment,
			Level:          level,
			TeamLeadID:     userTeamLead,
			IsActive:       !userInactive,
		}
		if err := a.userWriter.PutUser(cmd.Context(), u); err != nil {
			return err
		}
		return printJSON(u)
	},
}

var userShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a mirrored user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := a.users.GetUser(cmd.Context(), userOrg, userID)
		if err != nil {
			return err
		}
		return printJSON(u)
	},
}

func init() {
	userCmd.PersistentFlags().StringVar(&userOrg, "org", "", "organization ID (required)")
	userCmd.PersistentFlags().StringVar(&userID, "id", "", "user ID (required)")
	_ = userCmd.MarkPersistentFlagRequired("org")
	_ = userCmd.MarkPersistentFlagRequired("id")

	userPutCmd.Flags().StringVar(&userName, "name", "", "display name")
	userPutCmd.Flags().StringVar(&userEmail, "email", "", "email address")
	userPutCmd.Flags().StringVar(&userLevel, "level", "", "permission level: ADMIN, LEADERSHIP, TEAM_LEAD, STAFF, FREELANCER, CLIENT (required)")
	userPutCmd.Flags().StringVar(&userDepartment, "department", "", "department")
	userPutCmd.Flags().StringVar(&userTeamLead, "team-lead", "", "team lead user ID")
	userPutCmd.Flags().BoolVar(&userInactive, "inactive", false, "mark the user inactive")
	_ = userPutCmd.MarkFlagRequired("level")

	userCmd.AddCommand(userPutCmd, userShowCmd)
	rootCmd.AddCommand(userCmd)
}
