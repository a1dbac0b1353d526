package domain

import "fmt"

// Role is the wire-level role name carried in tokens and API payloads.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleClient Role = "CLIENT"
)

// DefaultRole is assigned to every self-registered account.
const DefaultRole = RoleClient

// storagePrefix decorates role names in the persisted schema.
const storagePrefix = "ROLE_"

var storedRoles = map[Role]string{
	RoleAdmin:  storagePrefix + string(RoleAdmin),
	RoleClient: storagePrefix + string(RoleClient),
}

var rolesByStored = map[string]Role{
	storedRoles[RoleAdmin]:  RoleAdmin,
	storedRoles[RoleClient]: RoleClient,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := storedRoles[r]
	return ok
}

// Stored returns the persisted representation of r (e.g. ROLE_ADMIN).
// Unknown roles map to the stored form of DefaultRole.
func (r Role) Stored() string {
	if s, ok := storedRoles[r]; ok {
		return s
	}
	return storedRoles[DefaultRole]
}

func (r Role) String() string { return string(r) }

// ParseRole parses a bare role name as it appears on the wire.
func ParseRole(name string) (Role, error) {
	r := Role(name)
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidRole, name)
	}
	return r, nil
}

// RoleFromStored maps a persisted role value back to its bare name.
func RoleFromStored(stored string) (Role, error) {
	r, ok := rolesByStored[stored]
	if !ok {
		return "", fmt.Errorf("%w: unknown stored role %q", ErrInvalidRole, stored)
	}
	return r, nil
}
