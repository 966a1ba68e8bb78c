// Package ratelimit provides per-caller, per-action-class admission control.
package ratelimit

import (
	"context"
	"time"
)

// Rule bounds how many calls a caller may make per window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the result of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter atomically consumes one unit for key in class.
type Limiter interface {
	Allow(ctx context.Context, class, key string) (Decision, error)
}

// Rules maps an action class to its rule. Classes without a rule are unlimited.
type Rules map[string]Rule

func (r Rules) lookup(class string) (Rule, bool) {
	rule, ok := r[class]
	if !ok || rule.Limit <= 0 || rule.Window <= 0 {
		return Rule{}, false
	}
	return rule, true
}
