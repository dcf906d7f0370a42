package roles

// Role constants defining the hierarchy
const (
	User       = "user"       // Basic authenticated viewer
	Technician = "technician" // Field operator: sensors, analytics, exports
	Admin      = "admin"      // Full system administrator
)

// roleHierarchy defines the role hierarchy levels (higher number = more privileges).
// Unknown roles rank 0 so every check fails closed.
var roleHierarchy = map[string]int{
	User:       1,
	Technician: 2,
	Admin:      3,
}

// Permission is a named capability gated by a minimum role.
type Permission string

const (
	PermissionAnalytics        Permission = "analytics"
	PermissionSensorManagement Permission = "sensor_management"
	PermissionDataExport       Permission = "data_export"
	PermissionUserManagement   Permission = "user_management"
	PermissionAdvancedSettings Permission = "advanced_settings"
	PermissionAdminPanel       Permission = "admin_panel"
)

// permissionMinRole is the single permission→role mapping shared by server
// middleware and the client SDK.
var permissionMinRole = map[Permission]string{
	PermissionAnalytics:        Technician,
	PermissionSensorManagement: Technician,
	PermissionDataExport:       Technician,
	PermissionUserManagement:   Admin,
	PermissionAdvancedSettings: Admin,
	PermissionAdminPanel:       Admin,
}

// Valid returns a slice of all assignable roles.
func Valid() []string {
	return []string{User, Technician, Admin}
}

// IsValid checks if a role is a known role.
func IsValid(role string) bool {
	_, exists := roleHierarchy[role]
	return exists
}

// Rank returns the hierarchy level for a role, 0 for unknown roles.
func Rank(role string) int {
	return roleHierarchy[role]
}

// HasRole checks if a role has at least the required privilege level.
func HasRole(role, requiredRole string) bool {
	required := Rank(requiredRole)
	if required == 0 {
		// Unknown requirement never grants access.
		return false
	}
	return Rank(role) >= required
}

// Permissions returns all defined permissions.
func Permissions() []Permission {
	return []Permission{
		PermissionAnalytics,
		PermissionSensorManagement,
		PermissionDataExport,
		PermissionUserManagement,
		PermissionAdvancedSettings,
		PermissionAdminPanel,
	}
}

// MinRole returns the minimum role required for a permission, empty string
// for unknown permissions.
func MinRole(p Permission) string {
	return permissionMinRole[p]
}

// Can checks whether a role is granted a permission. Unknown permissions and
// unknown roles are denied.
func Can(role string, p Permission) bool {
	min, exists := permissionMinRole[p]
	if !exists {
		return false
	}
	return HasRole(role, min)
}
