package access

// defaultKey indexes the static default table.
type defaultKey struct {
	resource string
	action   string
}

// defaultTable maps (resource, action) to the minimum permission level
// required when no policy rule matches. Pairs absent from the table are
// admin-only, as is any unknown resource.
var defaultTable = map[defaultKey]PermissionLevel{
	{"users", ActionList}:   LevelLeadership,
	{"users", ActionShow}:   LevelLeadership,
	{"users", ActionCreate}: LevelAdmin,
	{"users", ActionEdit}:   LevelAdmin,
	{"users", ActionDelete}: LevelAdmin,

	{"clients", ActionList}:   LevelStaff,
	{"clients", ActionShow}:   LevelStaff,
	{"clients", ActionCreate}: LevelLeadership,
	{"clients", ActionEdit}:   LevelLeadership,
	{"clients", ActionDelete}: LevelAdmin,

	{"projects", ActionList}:   LevelStaff,
	{"projects", ActionShow}:   LevelStaff,
	{"projects", ActionCreate}: LevelTeamLead,
	{"projects", ActionEdit}:   LevelTeamLead,
	{"projects", ActionDelete}: LevelLeadership,

	{"briefs", ActionList}:   LevelStaff,
	{"briefs", ActionShow}:   LevelStaff,
	{"briefs", ActionCreate}: LevelTeamLead,
	{"briefs", ActionEdit}:   LevelTeamLead,
	{"briefs", ActionDelete}: LevelLeadership,
	{"briefs", "assign"}:     LevelTeamLead,

	{"time_entries", ActionList}:   LevelStaff,
	{"time_entries", ActionShow}:   LevelStaff,
	{"time_entries", ActionCreate}: LevelStaff,
	{"time_entries", ActionEdit}:   LevelStaff,
	{"time_entries", ActionDelete}: LevelTeamLead,

	{"rfps", ActionList}:   LevelLeadership,
	{"rfps", ActionShow}:   LevelLeadership,
	{"rfps", ActionCreate}: LevelLeadership,
	{"rfps", ActionEdit}:   LevelLeadership,
	{"rfps", ActionDelete}: LevelAdmin,

	{"files", ActionList}:   LevelStaff,
	{"files", ActionShow}:   LevelStaff,
	{"files", ActionCreate}: LevelStaff,
	{"files", ActionEdit}:   LevelStaff,
	{"files", ActionDelete}: LevelTeamLead,
}

// DefaultMinimumLevel returns the minimum level required for (resource,
// action) when no rule matched. Unlisted pairs fall back to admin-only.
func DefaultMinimumLevel(resource, action string) PermissionLevel {
	if level, ok := defaultTable[defaultKey{resource: resource, action: action}]; ok {
		return level
	}
	return LevelAdmin
}

// DefaultResources returns the resources present in the default table,
// for diagnostics.
func DefaultResources() []string {
	seen := map[string]bool{}
	var out []string
	for k := range defaultTable {
		if !seen[k.resource] {
			seen[k.resource] = true
			out = append(out, k.resource)
		}
	}
	return out
}
