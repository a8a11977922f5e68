package rbac

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	"evaluator": {
		"catalog:view",
		"evaluation:view",
		"acta:view",
		"kpi:*",
	},
	"admin": {
		"*", // everything
	},
}
