package domain

type Role string

const (
	RoleTenantAdmin Role = "TENANT_ADMIN"
	RoleManager     Role = "MANAGER"
	RoleUser        Role = "USER"
)

func (r Role) Valid() bool {
	_, ok := RolePermissions[r]
	return ok
}

type Permission string

const (
	PermManageUsers     Permission = "manage_users"
	PermManageSettings  Permission = "manage_settings"
	PermManageBilling   Permission = "manage_billing"
	PermViewAllLeads    Permission = "view_all_leads"
	PermManageAllLeads  Permission = "manage_all_leads"
	PermViewOwnLeads    Permission = "view_own_leads"
	PermManageOwnLeads  Permission = "manage_own_leads"
	PermViewReports     Permission = "view_reports"
	PermManageCampaigns Permission = "manage_campaigns"
	PermViewDashboard   Permission = "view_dashboard"
)

var RolePermissions = map[Role][]Permission{
	RoleTenantAdmin: {
		PermManageUsers,
		PermManageSettings,
		PermManageBilling,
		PermViewAllLeads,
		PermManageAllLeads,
		PermViewReports,
		PermManageCampaigns,
		PermViewDashboard,
	},
	RoleManager: {
		PermViewAllLeads,
		PermManageAllLeads,
		PermViewReports,
		PermManageCampaigns,
		PermViewDashboard,
	},
	RoleUser: {
		PermViewOwnLeads,
		PermManageOwnLeads,
		PermViewDashboard,
	},
}

// Can reports whether the role grants the permission.
func (r Role) Can(p Permission) bool {
	for _, granted := range RolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}

// Permissions returns a copy of the role's permission list.
func (r Role) Permissions() []Permission {
	perms := RolePermissions[r]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}
