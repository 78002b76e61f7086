package session

import "testing"

func TestNormalizeRole(t *testing.T) {
	cases := map[string]string{
		"Student":       "student",
		"  STUDENT\t":   "student",
		"Teaching Asst": "teachingasst",
		"":              "",
	}
	for in, want := range cases {
		if got := NormalizeRole(in); got != want {
			t.Fatalf("NormalizeRole(%q)=%q want %q", in, got, want)
		}
	}
}

func TestDestination(t *testing.T) {
	cfg := DefaultConfig()
	student := func(first, tz bool) User {
		return User{ID: "u1", Role: Role{RoleName: " Student "}, IsFirstLogin: first, IsTimezoneSet: tz}
	}

	cases := []struct {
		name     string
		user     User
		lastPath string
		want     string
	}{
		{"student first login", student(true, true), "/courses/1", "/onboarding"},
		{"student no timezone", student(false, false), "/courses/1", "/onboarding"},
		{"student done", student(false, true), "/courses/1", "/courses/1"},
		{"student done no last path", student(false, true), "", "/dashboard"},
		{"teacher first login", User{Role: Role{RoleName: "teacher"}, IsFirstLogin: true}, "/grades", "/grades"},
		{"last path is login", User{Role: Role{RoleName: "teacher"}}, "/login", "/dashboard"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cfg.Destination(tc.user, tc.lastPath); got != tc.want {
				t.Fatalf("Destination()=%q want %q", got, tc.want)
			}
		})
	}
}
