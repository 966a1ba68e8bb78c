// Package rbac holds the static role to permission table.
package rbac

import (
	"sort"
	"strings"

	"github.com/noah-isme/campus-ops-api/internal/models"
)

type permissionSet map[models.Permission]struct{}

func setOf(perms ...models.Permission) permissionSet {
	set := make(permissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

var allPermissions = []models.Permission{
	models.PermTaskView,
	models.PermTaskViewAll,
	models.PermTaskCreate,
	models.PermTaskEdit,
	models.PermTaskComment,
	models.PermExamView,
	models.PermExamViewAll,
	models.PermExamCreate,
	models.PermExamEdit,
	models.PermExamDelete,
	models.PermExamPublish,
	models.PermAuditView,
}

var table = map[models.Role]permissionSet{
	models.RoleRegistrar: setOf(
		models.PermTaskView,
		models.PermTaskCreate,
		models.PermTaskComment,
		models.PermExamView,
		models.PermExamCreate,
		models.PermExamEdit,
		models.PermExamDelete,
		models.PermExamPublish,
	),
	models.RoleDean: setOf(
		models.PermTaskView,
		models.PermTaskViewAll,
		models.PermTaskCreate,
		models.PermTaskEdit,
		models.PermTaskComment,
		models.PermExamView,
		models.PermExamViewAll,
		models.PermExamEdit,
		models.PermExamPublish,
		models.PermAuditView,
	),
	models.RoleDirector: setOf(allPermissions...),
	models.RoleExecutive: viewOnly(
		models.PermTaskView,
		models.PermTaskViewAll,
		models.PermExamView,
		models.PermExamViewAll,
		models.PermAuditView,
	),
}

var readOnlyRoles = map[models.Role]struct{}{
	models.RoleExecutive: {},
}

// viewOnly keeps only view-class permissions so a read-only row cannot be widened by accident.
func viewOnly(perms ...models.Permission) permissionSet {
	set := make(permissionSet, len(perms))
	for _, p := range perms {
		if IsViewPermission(p) {
			set[p] = struct{}{}
		}
	}
	return set
}

// IsViewPermission reports whether the permission only grants reads.
func IsViewPermission(p models.Permission) bool {
	_, action, ok := strings.Cut(string(p), ":")
	return ok && (action == "view" || strings.HasPrefix(action, "view_"))
}

// Roles returns the role enumeration in a stable order.
func Roles() []models.Role {
	return []models.Role{models.RoleRegistrar, models.RoleDean, models.RoleDirector, models.RoleExecutive}
}

// Known reports whether the role is part of the enumeration.
func Known(role models.Role) bool {
	_, ok := table[role]
	return ok
}

// IsReadOnly reports whether the role is a designated read-only role.
func IsReadOnly(role models.Role) bool {
	_, ok := readOnlyRoles[role]
	return ok
}

// Allows reports whether role holds permission. Unknown roles are denied everything.
func Allows(role models.Role, permission models.Permission) bool {
	set, ok := table[role]
	if !ok {
		return false
	}
	_, ok = set[permission]
	return ok
}

// AllPermissions returns a sorted copy of the role's permission set.
func AllPermissions(role models.Role) []models.Permission {
	set := table[role]
	out := make([]models.Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AnyOf is true when role holds at least one of the permissions.
func AnyOf(role models.Role, perms ...models.Permission) bool {
	for _, p := range perms {
		if Allows(role, p) {
			return true
		}
	}
	return false
}

// AllOf is true when role holds every permission.
func AllOf(role models.Role, perms ...models.Permission) bool {
	for _, p := range perms {
		if !Allows(role, p) {
			return false
		}
	}
	return true
}

// ScopeAll reports whether the role may observe every entity of a collection
// rather than only the ones it created.
func ScopeAll(role models.Role, collection models.Collection) bool {
	switch collection {
	case models.CollectionTasks:
		return Allows(role, models.PermTaskViewAll)
	case models.CollectionExams:
		return Allows(role, models.PermExamViewAll)
	case models.CollectionAuditLogs:
		return Allows(role, models.PermAuditView)
	default:
		return false
	}
}

// ViewPermission returns the permission needed to read a collection.
func ViewPermission(collection models.Collection) (models.Permission, bool) {
	switch collection {
	case models.CollectionTasks:
		return models.PermTaskView, true
	case models.CollectionExams:
		return models.PermExamView, true
	case models.CollectionAuditLogs:
		return models.PermAuditView, true
	default:
		return "", false
	}
}
