package model

// ShareEntry grants a set of actions on one resource to one target. Within a
// share list targets are unique; re-sharing replaces the action set.
type ShareEntry struct {
	TargetID string   `json:"targetId"`
	Actions  []Action `json:"actions"`
}

// SharedWith holds the three share categories of a resource config.
type SharedWith struct {
	Users         []ShareEntry `json:"users"`
	Teams         []ShareEntry `json:"teams"`
	Organizations []ShareEntry `json:"organizations"`
}

// ResourcePermissionConfig is the sharing policy attached to exactly one
// resource instance. It is created lazily on first share and owned by the
// resource's owner. The owner implicitly holds every action without an
// explicit entry; IsPublic additively grants read to every authenticated
// principal.
type ResourcePermissionConfig struct {
	ResourceType ResourceType `json:"resourceType"`
	ResourceID   string       `json:"resourceId"`
	ResourceName string       `json:"resourceName"`
	OwnerID      string       `json:"ownerId"`
	IsPublic     bool         `json:"isPublic"`
	SharedWith   SharedWith   `json:"sharedWith"`
}

// SharePatch is a partial, category-scoped update: a non-nil category
// replaces that category wholesale, a nil category is left untouched.
type SharePatch struct {
	IsPublic      *bool        `json:"isPublic,omitempty"`
	Users         []ShareEntry `json:"users,omitempty"`
	Teams         []ShareEntry `json:"teams,omitempty"`
	Organizations []ShareEntry `json:"organizations,omitempty"`
}

// ActionsFor returns the actions the config itself gives a target in one
// category, last-wins over duplicate target IDs.
func ActionsFor(entries []ShareEntry, targetID string) []Action {
	var actions []Action
	for _, e := range entries {
		if e.TargetID == targetID {
			actions = e.Actions
		}
	}
	return actions
}

// DedupeEntries collapses duplicate target IDs keeping the last action set,
// preserving first-seen order of targets.
func DedupeEntries(entries []ShareEntry) []ShareEntry {
	idx := make(map[string]int, len(entries))
	out := make([]ShareEntry, 0, len(entries))
	for _, e := range entries {
		if i, seen := idx[e.TargetID]; seen {
			out[i].Actions = e.Actions
			continue
		}
		idx[e.TargetID] = len(out)
		out = append(out, e)
	}
	return out
}
