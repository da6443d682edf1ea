// Package entitlement gates dialogue entry on channel membership.
package entitlement

import "context"

// Checker reports whether a user may use the bot. A lookup failure is an
// error, not a verdict; the engine's policy is fail-closed (deny until a
// successful check).
type Checker interface {
	IsMember(ctx context.Context, userID string) (bool, error)
}

// AllowAll is a Checker that admits everyone. Used for platforms without
// a membership gate configured.
type AllowAll struct{}

func (AllowAll) IsMember(ctx context.Context, userID string) (bool, error) {
	return true, nil
}
