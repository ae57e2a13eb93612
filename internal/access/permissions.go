package access

import (
	"errors"

	"github.com/triagecore/triagecore/pkg/models"
)

var (
	ErrUnknownRole        = errors.New("unknown role")
	ErrMissingPermission  = errors.New("missing permission")
	ErrPrincipalRequired  = errors.New("principal required")
	ErrPermissionRequired = errors.New("permission required")
)

// Permissions guarding state-changing and read operations.
const (
	PermApproveAction     = "approve:action"
	PermRejectAction      = "reject:action"
	PermEscalateAction    = "escalate:action"
	PermConversationRead  = "conversation:read"
	PermConversationWrite = "conversation:write"
	PermLearningRead      = "learning:read"
	PermMetricsRead       = "metrics:read"
	PermAuditRead         = "audit:read"
)

// rolePermissions is the static role→permission table. It is never stored
// per principal; the system role implicitly holds every permission.
var rolePermissions = map[models.RoleName][]string{
	models.RoleAdmin: {
		PermApproveAction, PermRejectAction, PermEscalateAction,
		PermConversationRead, PermConversationWrite,
		PermLearningRead, PermMetricsRead, PermAuditRead,
	},
	models.RoleOperator: {
		PermApproveAction, PermRejectAction, PermEscalateAction,
		PermConversationRead, PermConversationWrite,
	},
	models.RoleViewer: {
		PermConversationRead, PermMetricsRead,
	},
}

// IsValidRole reports whether the role exists in the table.
func IsValidRole(role models.RoleName) bool {
	if role == models.RoleSystem {
		return true
	}
	_, ok := rolePermissions[role]
	return ok
}

// PermissionsForRole returns the derived permission set for a role.
func PermissionsForRole(role models.RoleName) []string {
	if role == models.RoleSystem {
		all := make([]string, 0)
		seen := map[string]bool{}
		for _, perms := range rolePermissions {
			for _, p := range perms {
				if !seen[p] {
					seen[p] = true
					all = append(all, p)
				}
			}
		}
		return all
	}
	return append([]string(nil), rolePermissions[role]...)
}

func roleHasPermission(role models.RoleName, permission string) bool {
	if role == models.RoleSystem {
		return true
	}
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}
