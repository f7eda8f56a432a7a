package role

// Capability categories. Every resolved permission set carries all of them,
// even when a bucket grants nothing in a category.
const (
	CategoryClaims   = "claims"
	CategoryReports  = "reports"
	CategoryUsers    = "users"
	CategorySettings = "settings"
	CategoryQA       = "qa"
)

// Categories lists the capability categories in a stable order.
var Categories = []string{CategoryClaims, CategoryReports, CategoryUsers, CategorySettings, CategoryQA}

// Actions within a category.
const (
	ActionView    = "view"
	ActionEdit    = "edit"
	ActionAssign  = "assign"
	ActionApprove = "approve"
)

// Actions lists the known actions in a stable order.
var Actions = []string{ActionView, ActionEdit, ActionAssign, ActionApprove}

// PermissionSet maps category -> action -> allowed. Resolved sets are dense:
// every category and action has an entry.
type PermissionSet map[string]map[string]bool

// Overrides is a sparse category -> action -> allowed patch applied on top of
// the level bucket. An override always wins, grant or revoke.
type Overrides map[string]map[string]bool

// Allowed reports whether the set grants the action in the category.
func (p PermissionSet) Allowed(category, action string) bool {
	if m, ok := p[category]; ok {
		return m[action]
	}
	return false
}

// clone deep-copies the set so cached entries stay immutable.
func (p PermissionSet) clone() PermissionSet {
	out := make(PermissionSet, len(p))
	for cat, actions := range p {
		m := make(map[string]bool, len(actions))
		for a, v := range actions {
			m[a] = v
		}
		out[cat] = m
	}
	return out
}
