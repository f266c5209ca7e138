package auth

import (
	"civicledger/core/errs"
)

// Policy maps operation names to the roles allowed to run them. Operations
// missing from the policy are open to every authenticated caller.
type Policy map[string][]string

// Check returns an UNAUTHORIZED error when caller's role is not allowed for op.
func (p Policy) Check(op string, caller Caller) error {
	allowed, ok := p[op]
	if !ok {
		return nil
	}
	if caller == nil {
		return errs.Newf(errs.CodeUnauthorized, "%s requires an identity", op)
	}
	role := caller.Role()
	for _, r := range allowed {
		if r == role {
			return nil
		}
	}
	return errs.Newf(errs.CodeUnauthorized, "role %q may not call %s", role, op).
		WithMetadata("caller", caller.ID())
}

// HasRole reports whether caller holds role.
func HasRole(caller Caller, role string) bool {
	return caller != nil && caller.Role() == role
}
