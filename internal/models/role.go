package models

// Role is the fixed category assigned to a caller at provisioning time.
type Role string

const (
	RoleRegistrar Role = "REGISTRAR"
	RoleDean      Role = "DEAN"
	RoleDirector  Role = "DIRECTOR"
	RoleExecutive Role = "EXECUTIVE"
)

// Permission is an opaque capability tag in resource:action form.
type Permission string

const (
	PermTaskView    Permission = "task:view"
	PermTaskViewAll Permission = "task:view_all"
	PermTaskCreate  Permission = "task:create"
	PermTaskEdit    Permission = "task:edit"
	PermTaskComment Permission = "task:comment"

	PermExamView    Permission = "exam:view"
	PermExamViewAll Permission = "exam:view_all"
	PermExamCreate  Permission = "exam:create"
	PermExamEdit    Permission = "exam:edit"
	PermExamDelete  Permission = "exam:delete"
	PermExamPublish Permission = "exam:publish"

	PermAuditView Permission = "audit:view"
)
