package auth

import "slices"

type Permission string

const (
	// PermOperator reads status and configuration.
	PermOperator Permission = "operator"
	// PermTechnician writes configuration and drives virtual inputs.
	PermTechnician Permission = "technician"
	// PermAdmin runs backup, restore and raw SysEx requests.
	PermAdmin Permission = "admin"
)

// AllPermissions is granted to anonymous callers when auth is not required.
var AllPermissions = []Permission{PermOperator, PermTechnician, PermAdmin}

func RoleToPermissions(role string) []Permission {
	switch role {
	case "admin":
		return []Permission{PermOperator, PermTechnician, PermAdmin}
	case "technician":
		return []Permission{PermOperator, PermTechnician}
	default:
		return []Permission{PermOperator}
	}
}

func HasPermission(permissions []Permission, required Permission) bool {
	return slices.Contains(permissions, required)
}
