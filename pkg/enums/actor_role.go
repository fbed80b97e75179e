package enums

import "fmt"

// ActorRole is the role carried in access tokens.
type ActorRole string

const (
	ActorRoleCustomer ActorRole = "customer"
	ActorRoleVendor   ActorRole = "vendor"
	ActorRoleAdmin    ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	ActorRoleCustomer,
	ActorRoleVendor,
	ActorRoleAdmin,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}

// CancelledBy maps the role onto the party recorded on a cancellation.
func (r ActorRole) CancelledBy() (CancelledBy, bool) {
	switch r {
	case ActorRoleCustomer:
		return CancelledByCustomer, true
	case ActorRoleVendor:
		return CancelledByVendor, true
	default:
		return "", false
	}
}
