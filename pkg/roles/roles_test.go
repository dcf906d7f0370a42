package roles

import "testing"

func TestRank(t *testing.T) {
	tests := []struct {
		role     string
		expected int
	}{
		{User, 1},
		{Technician, 2},
		{Admin, 3},
		{"superuser", 0},
		{"", 0},
		{"ADMIN", 0},
	}

	for _, test := range tests {
		if rank := Rank(test.role); rank != test.expected {
			t.Errorf("Rank(%q) = %d, want %d", test.role, rank, test.expected)
		}
	}
}

func TestHasRole(t *testing.T) {
	ordered := []string{User, Technician, Admin}

	// For all known role pairs HasRole must reduce to rank comparison.
	for _, actual := range ordered {
		for _, required := range ordered {
			want := Rank(actual) >= Rank(required)
			if got := HasRole(actual, required); got != want {
				t.Errorf("HasRole(%s, %s) = %t, want %t", actual, required, got, want)
			}
		}
	}

	// Unrecognized actual roles are denied everywhere.
	for _, actual := range []string{"superuser", "", "root", "Admin "} {
		for _, required := range ordered {
			if HasRole(actual, required) {
				t.Errorf("HasRole(%q, %s) should be false", actual, required)
			}
		}
	}

	// Unrecognized required roles never grant access.
	if HasRole(Admin, "superuser") {
		t.Error("HasRole(admin, superuser) should be false")
	}
}

func TestCan(t *testing.T) {
	tests := []struct {
		role       string
		permission Permission
		expected   bool
	}{
		// Technician-level capabilities
		{Admin, PermissionAnalytics, true},
		{Technician, PermissionAnalytics, true},
		{User, PermissionAnalytics, false},
		{Technician, PermissionSensorManagement, true},
		{User, PermissionSensorManagement, false},
		{Technician, PermissionDataExport, true},
		{User, PermissionDataExport, false},

		// Admin-only capabilities
		{Admin, PermissionUserManagement, true},
		{Technician, PermissionUserManagement, false},
		{User, PermissionUserManagement, false},
		{Admin, PermissionAdvancedSettings, true},
		{Technician, PermissionAdvancedSettings, false},
		{Admin, PermissionAdminPanel, true},
		{Technician, PermissionAdminPanel, false},

		// Unknown inputs fail closed
		{"superuser", PermissionAnalytics, false},
		{Admin, Permission("launch_rockets"), false},
	}

	for _, test := range tests {
		if got := Can(test.role, test.permission); got != test.expected {
			t.Errorf("Can(%s, %s) = %t, want %t", test.role, test.permission, got, test.expected)
		}
	}
}

func TestPermissionsHaveMinRoles(t *testing.T) {
	for _, p := range Permissions() {
		min := MinRole(p)
		if !IsValid(min) {
			t.Errorf("MinRole(%s) = %q, not a valid role", p, min)
		}
	}
}

func TestIsValid(t *testing.T) {
	for _, role := range Valid() {
		if !IsValid(role) {
			t.Errorf("IsValid(%s) should be true", role)
		}
	}

	for _, role := range []string{"invalid", "", "TECHNICIAN", "admin "} {
		if IsValid(role) {
			t.Errorf("IsValid(%q) should be false", role)
		}
	}
}
