package auth

import (
	"fmt"
)

// Authorizer defines the interface for authorization
type Authorizer interface {
	// Authorize checks if the auth context is authorized for the given operation on a kind
	Authorize(ctx *AuthContext, kind string, permission Permission) error
}

// PermissionAuthorizer implements authorization logic
type PermissionAuthorizer struct {
}

// NewPermissionAuthorizer creates a new permission authorizer
func NewPermissionAuthorizer() *PermissionAuthorizer {
	return &PermissionAuthorizer{}
}

// Authorize checks if the auth context is authorized for the given operation
func (a *PermissionAuthorizer) Authorize(ctx *AuthContext, kind string, permission Permission) error {
	if ctx == nil {
		return UnauthorizedError{Reason: "no auth context"}
	}

	resource := kind
	if resource == "" {
		resource = "registry"
	}

	// Check kind is allowed
	if !ctx.IsKindAllowed(kind) {
		return ForbiddenError{
			Resource: resource,
			Action:   string(permission),
			Reason:   fmt.Sprintf("kind '%s' is not allowed for this token", kind),
		}
	}

	// Check permission
	if !ctx.HasPermission(permission) {
		return ForbiddenError{
			Resource: resource,
			Action:   string(permission),
			Reason:   "token does not have required permission",
		}
	}

	return nil
}
