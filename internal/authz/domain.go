// Package authz resolves the caller's identity and role once per request
// and exposes guards for role protected routes.
package authz

import "context"

// Role identifies the coarse access level of a user.
type Role string

const (
	// RoleAdmin is the head-office operator role.
	RoleAdmin Role = "admin"
	// RoleFranchise is the franchise outlet role.
	RoleFranchise Role = "franchise"
)

// IsValid checks the role is one of the known values.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleFranchise
}

// Context describes the authenticated caller for the duration of a request.
// FranchiseID is zero for admin users.
type Context struct {
	UserID      int64
	Role        Role
	FranchiseID int64
}

// IsAdmin reports whether the caller holds the admin role.
func (c Context) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type contextKey struct{}

// WithContext stores the resolved identity in the request context.
func WithContext(ctx context.Context, ac Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext extracts the resolved identity, if any.
func FromContext(ctx context.Context) (Context, bool) {
	ac, ok := ctx.Value(contextKey{}).(Context)
	return ac, ok
}
