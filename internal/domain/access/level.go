// Package access contains domain types for organization access-control
// policy evaluation: permission levels, policies, rules, assignments,
// conditions, and decisions.
package access

// PermissionLevel is a ranked role in the static role hierarchy.
// Levels are totally ordered; comparisons use the integer rank.
type PermissionLevel string

const (
	// LevelAdmin has the highest rank and full default access.
	LevelAdmin PermissionLevel = "ADMIN"
	// LevelLeadership covers org leadership: broad read, wide write defaults.
	LevelLeadership PermissionLevel = "LEADERSHIP"
	// LevelTeamLead covers team leads: team-scoped management defaults.
	LevelTeamLead PermissionLevel = "TEAM_LEAD"
	// LevelStaff covers regular employees.
	LevelStaff PermissionLevel = "STAFF"
	// LevelFreelancer covers external contractors with restricted defaults.
	LevelFreelancer PermissionLevel = "FREELANCER"
	// LevelClient has the lowest rank; portal-only access.
	LevelClient PermissionLevel = "CLIENT"
)

// levelRanks maps each level to its rank. Higher rank means more privilege.
// Immutable, process-wide constant.
var levelRanks = map[PermissionLevel]int{
	LevelAdmin:      60,
	LevelLeadership: 50,
	LevelTeamLead:   40,
	LevelStaff:      30,
	LevelFreelancer: 20,
	LevelClient:     10,
}

// Rank returns the integer rank of the level, or 0 for unknown levels.
// An unknown level ranks below every valid level.
func (l PermissionLevel) Rank() int {
	return levelRanks[l]
}

// Valid reports whether the level is one of the known hierarchy levels.
func (l PermissionLevel) Valid() bool {
	_, ok := levelRanks[l]
	return ok
}

// AtLeast reports whether l ranks at or above other.
func (l PermissionLevel) AtLeast(other PermissionLevel) bool {
	return l.Rank() >= other.Rank()
}

// Levels returns all known permission levels ordered from highest to
// lowest rank. The returned slice is a fresh copy.
func Levels() []PermissionLevel {
	return []PermissionLevel{
		LevelAdmin,
		LevelLeadership,
		LevelTeamLead,
		LevelStaff,
		LevelFreelancer,
		LevelClient,
	}
}
