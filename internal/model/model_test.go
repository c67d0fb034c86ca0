package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kidvue/gatekeeper/internal/rbac"
)

func TestAdminJSONHidesPasswordHash(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := Admin{
		ID:           "adm-1",
		Email:        "admin@kidvue.io",
		PasswordHash: "$2a$12$secretsecretsecret",
		Name:         "Ops Admin",
		Role:         rbac.RoleSuperAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(b), "secret") {
		t.Errorf("password hash leaked into JSON: %s", b)
	}
	if !strings.Contains(string(b), `"role":"SUPER_ADMIN"`) {
		t.Errorf("role missing from JSON: %s", b)
	}
}

func TestUserJSONHidesPasswordHash(t *testing.T) {
	u := User{ID: "usr-1", Email: "parent@example.com", PasswordHash: "$2a$12$topsecret"}
	b, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(b), "topsecret") {
		t.Errorf("password hash leaked into JSON: %s", b)
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Admin@Kidvue.IO", "admin@kidvue.io"},
		{"  parent@example.com \n", "parent@example.com"},
		{"already@lower.case", "already@lower.case"},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
