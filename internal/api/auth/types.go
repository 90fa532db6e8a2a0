package auth

// Permission represents an API permission
type Permission string

const (
	// Registry permissions
	PermissionRegistryRead  Permission = "registry.read"
	PermissionRegistryWrite Permission = "registry.write"

	// Change event subscription
	PermissionEventsSubscribe Permission = "events.subscribe"
)

// AllKinds scopes a check to every registry kind at once. Only tokens
// without a kind restriction pass it.
const AllKinds = "*"

// AllPermissions lists every permission, in the order they are documented
var AllPermissions = []Permission{
	PermissionRegistryRead,
	PermissionRegistryWrite,
	PermissionEventsSubscribe,
}

// APIToken represents an API token with its metadata
type APIToken struct {
	// TokenHash is the hashed token value (never store plain tokens)
	TokenHash string
	// Name identifies the token holder in logs
	Name string
	// AllowedKinds restricts the registry kinds the token may touch (empty means all)
	AllowedKinds []string
	// Permissions is the list of permissions granted
	Permissions []Permission
	// CreatedAt is when the token was created
	CreatedAt int64 // Unix timestamp
	// ExpiresAt is when the token expires (0 means no expiration)
	ExpiresAt int64 // Unix timestamp
}

// HasPermission checks if the token has a specific permission
func (t *APIToken) HasPermission(perm Permission) bool {
	return hasPermission(t.Permissions, perm)
}

// IsKindAllowed checks if the token allows access to a registry kind
func (t *APIToken) IsKindAllowed(kind string) bool {
	return isKindAllowed(t.AllowedKinds, kind)
}

// IsExpired checks if the token is expired
func (t *APIToken) IsExpired(now int64) bool {
	if t.ExpiresAt == 0 {
		return false // No expiration
	}
	return now >= t.ExpiresAt
}

// Context builds the request auth context for this token
func (t *APIToken) Context() *AuthContext {
	return &AuthContext{
		TokenHash:    t.TokenHash,
		Name:         t.Name,
		AllowedKinds: t.AllowedKinds,
		Permissions:  t.Permissions,
	}
}

// AuthContext contains authentication and authorization context for a request
type AuthContext struct {
	// TokenHash is the hashed token that authenticated this request
	TokenHash string
	// Name is the token holder
	Name string
	// AllowedKinds are the allowed registry kinds
	AllowedKinds []string
	// Permissions are the granted permissions
	Permissions []Permission
}

// HasPermission checks if the auth context has a specific permission
func (c *AuthContext) HasPermission(perm Permission) bool {
	return hasPermission(c.Permissions, perm)
}

// IsKindAllowed checks if the auth context allows access to a registry kind
func (c *AuthContext) IsKindAllowed(kind string) bool {
	return isKindAllowed(c.AllowedKinds, kind)
}

func hasPermission(perms []Permission, perm Permission) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

func isKindAllowed(allowed []string, kind string) bool {
	// Empty means every kind, and kind-less routes (catalog, events) are open
	if len(allowed) == 0 || kind == "" {
		return true
	}
	for _, k := range allowed {
		if k == kind {
			return true
		}
	}
	return false
}
