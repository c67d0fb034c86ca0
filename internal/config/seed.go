package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kidvue/gatekeeper/internal/rbac"
)

// SeedFile represents a provisioning file consumed by `gatekeeper seed`.
// It declares admin and parent accounts to create on first deploy.
type SeedFile struct {
	Admins []SeedAdmin `yaml:"admins"`
	Users  []SeedUser  `yaml:"users"`
}

// SeedAdmin declares an admin account to provision.
type SeedAdmin struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Role     string `yaml:"role"`
}

// SeedUser declares a parent account to provision.
type SeedUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// LoadSeedFile reads and parses a YAML seed file. Environment variables
// referenced as ${VAR_NAME} in the file are expanded before parsing, so
// passwords can be kept out of the file itself.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	var seed SeedFile
	if err := yaml.Unmarshal([]byte(content), &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks that every declared account is complete and that
// admin roles are known. Password strength is checked at provisioning
// time, not here, so the error points at the offending entry.
func (s *SeedFile) Validate() error {
	for i, a := range s.Admins {
		if a.Email == "" || a.Password == "" || a.Name == "" {
			return fmt.Errorf("admins[%d]: email, password, and name are required", i)
		}
		if a.Role != "" {
			if _, err := rbac.ParseRole(a.Role); err != nil {
				return fmt.Errorf("admins[%d]: %w", i, err)
			}
		}
	}
	for i, u := range s.Users {
		if u.Email == "" || u.Password == "" || u.Name == "" {
			return fmt.Errorf("users[%d]: email, password, and name are required", i)
		}
	}
	return nil
}

// AdminRole returns the declared role, defaulting to ADMIN.
func (a SeedAdmin) AdminRole() rbac.Role {
	if a.Role == "" {
		return rbac.RoleAdmin
	}
	role, err := rbac.ParseRole(a.Role)
	if err != nil {
		return rbac.RoleAdmin
	}
	return role
}
