package model

import (
	"time"
)

// ConditionType tags the condition variant. Conditions are a closed tagged
// union rather than an open map so evaluation stays exhaustive.
type ConditionType string

const (
	ConditionTypeTimeRange  ConditionType = "time_range"
	ConditionTypeIPList     ConditionType = "ip_list"
	ConditionTypeDeviceList ConditionType = "device_list"
	ConditionTypeCustom     ConditionType = "custom"
)

// TimeRange bounds a grant to a window; either side may be zero to leave
// that side open.
type TimeRange struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Condition restricts when a grant applies. Exactly the field matching Type
// is meaningful.
type Condition struct {
	Type       ConditionType `json:"type"`
	TimeRange  *TimeRange    `json:"timeRange,omitempty"`
	IPList     []string      `json:"ipList,omitempty"`
	DeviceList []string      `json:"deviceList,omitempty"`
	Custom     string        `json:"custom,omitempty"`
}

// EvalContext carries the request facts conditions are judged against. The
// local evaluator only has Now; the server-side check also knows the client
// IP and device.
type EvalContext struct {
	Now      time.Time
	ClientIP string
	DeviceID string
}

// Satisfied reports whether the condition holds under ctx. The second return
// is false when the context lacks the fact needed to judge the condition:
// callers must then fail closed for that grant.
func (c Condition) Satisfied(ctx EvalContext) (ok bool, decidable bool) {
	switch c.Type {
	case ConditionTypeTimeRange:
		if c.TimeRange == nil {
			return false, true
		}
		if !c.TimeRange.Start.IsZero() && ctx.Now.Before(c.TimeRange.Start) {
			return false, true
		}
		if !c.TimeRange.End.IsZero() && ctx.Now.After(c.TimeRange.End) {
			return false, true
		}
		return true, true
	case ConditionTypeIPList:
		if ctx.ClientIP == "" {
			return false, false
		}
		for _, ip := range c.IPList {
			if ip == ctx.ClientIP {
				return true, true
			}
		}
		return false, true
	case ConditionTypeDeviceList:
		if ctx.DeviceID == "" {
			return false, false
		}
		for _, d := range c.DeviceList {
			if d == ctx.DeviceID {
				return true, true
			}
		}
		return false, true
	case ConditionTypeCustom:
		// Custom predicates are resolved by the backend only; nothing in
		// this process can judge them.
		return false, false
	default:
		return false, true
	}
}

// ConditionsSatisfied reports whether every condition on the grant holds
// under ctx. Any undecidable condition fails the whole set.
func (p Permission) ConditionsSatisfied(ctx EvalContext) bool {
	for _, c := range p.Conditions {
		ok, decidable := c.Satisfied(ctx)
		if !decidable || !ok {
			return false
		}
	}
	return true
}
