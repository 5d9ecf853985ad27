package rbac

const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// RolePermissions is the default policy. Student-only actions (taking an
// exam) are deliberately absent from the admin list.
var RolePermissions = map[string][]string{
	RoleStudent: {
		"exam:view",
		"attempt:view",
		"submission:create",
		"submission:view-own",
		"result:view-own",
		"user:self",
	},
	RoleAdmin: {
		"exam:view",
		"exam:create",
		"exam:publish",
		"exam:delete",
		"submission:view-all",
		"result:*",
		"users:list",
		"dashboard:view",
		"audit:view",
		"user:self",
	},
}
