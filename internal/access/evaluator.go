package access

import (
	"time"

	"labguard/internal/model"
)

// Evaluator answers permission questions synchronously from the cache
// snapshot. It never blocks, never returns an error and fails closed: an
// unauthenticated principal or an unloaded cache always yields false.
//
// The model is allow-only. A decision is the logical OR over all matching
// valid grants; adding a grant can only turn a denial into an allow.
type Evaluator struct {
	cache *Cache
	now   func() time.Time
}

// NewEvaluator creates an evaluator over the given cache.
func NewEvaluator(cache *Cache) *Evaluator {
	return &Evaluator{cache: cache, now: time.Now}
}

// CanAccess is the fast-path check: admin bypass first, then a scan of the
// cached grants for any valid grant covering the resource type, action and
// (optionally) resource instance. An empty resourceID asks about the type in
// general.
func (e *Evaluator) CanAccess(p model.Principal, rt model.ResourceType, action model.Action, resourceID string) bool {
	if p.IsAdmin() {
		return true
	}
	if !p.IsAuthenticated || !e.cache.Loaded() {
		return false
	}

	ctx := model.EvalContext{Now: e.now()}
	for _, g := range e.cache.Snapshot() {
		if g.Matches(rt, action, resourceID) && e.grantUsable(g, ctx) {
			return true
		}
	}
	return false
}

// HasResourcePermission refines CanAccess with resource-specific-first
// precedence: grants naming the resource instance are consulted before any
// type-wide fallback. Note the fallback still applies when no specific
// grant exists, so "specific grant absent" alone is not a denial if a
// type-wide grant is held.
func (e *Evaluator) HasResourcePermission(p model.Principal, resourceID string, rt model.ResourceType, action model.Action) bool {
	if p.IsAdmin() {
		return true
	}
	if resourceID == "" {
		return e.CanAccess(p, rt, action, "")
	}
	if !p.IsAuthenticated || !e.cache.Loaded() {
		return false
	}

	ctx := model.EvalContext{Now: e.now()}
	snapshot := e.cache.Snapshot()

	for _, g := range snapshot {
		if g.MatchesExact(rt, action, resourceID) && e.grantUsable(g, ctx) {
			return true
		}
	}
	for _, g := range snapshot {
		if g.ResourceType == rt && g.Action == action && g.ResourceID == "" && e.grantUsable(g, ctx) {
			return true
		}
	}
	return false
}

// grantUsable applies the validity invariant: inactive or expired grants
// never contribute, and neither do grants whose conditions this process
// cannot or does not satisfy. IP, device and custom-predicate conditions are
// undecidable locally, so such grants only ever allow through the oracle.
func (e *Evaluator) grantUsable(g model.Permission, ctx model.EvalContext) bool {
	return g.ValidAt(ctx.Now) && g.ConditionsSatisfied(ctx)
}
