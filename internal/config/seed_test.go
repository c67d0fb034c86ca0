package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kidvue/gatekeeper/internal/rbac"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}

func TestLoadSeedFile(t *testing.T) {
	path := writeSeed(t, `
admins:
  - email: root@example.com
    password: Sup3r&Secret!Pass
    name: Root
    role: SUPER_ADMIN
  - email: mod@example.com
    password: M0derate&Secret!
    name: Mod
users:
  - email: parent@example.com
    password: P4rent&Secret!Pass
    name: A Parent
`)

	seed, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	if len(seed.Admins) != 2 || len(seed.Users) != 1 {
		t.Fatalf("got %d admins, %d users", len(seed.Admins), len(seed.Users))
	}
	if seed.Admins[0].AdminRole() != rbac.RoleSuperAdmin {
		t.Errorf("role = %q, want SUPER_ADMIN", seed.Admins[0].AdminRole())
	}
	// Omitted role falls back to ADMIN.
	if seed.Admins[1].AdminRole() != rbac.RoleAdmin {
		t.Errorf("default role = %q, want ADMIN", seed.Admins[1].AdminRole())
	}
}

func TestLoadSeedFileEnvExpansion(t *testing.T) {
	t.Setenv("SEED_ROOT_PASSWORD", "FromEnv&Secret!Pass")
	path := writeSeed(t, `
admins:
  - email: root@example.com
    password: ${SEED_ROOT_PASSWORD}
    name: Root
`)

	seed, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	if seed.Admins[0].Password != "FromEnv&Secret!Pass" {
		t.Errorf("password = %q, want env-expanded value", seed.Admins[0].Password)
	}
}

func TestLoadSeedFileValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing admin fields", "admins:\n  - email: root@example.com\n"},
		{"unknown role", "admins:\n  - email: root@example.com\n    password: x\n    name: Root\n    role: OVERLORD\n"},
		{"missing user fields", "users:\n  - email: parent@example.com\n"},
		{"bad yaml", "admins: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadSeedFile(writeSeed(t, tc.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadSeedFileMissing(t *testing.T) {
	if _, err := LoadSeedFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
