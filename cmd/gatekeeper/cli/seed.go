package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kidvue/gatekeeper/internal/config"
	"github.com/kidvue/gatekeeper/internal/model"
	"github.com/kidvue/gatekeeper/internal/service"
	"github.com/kidvue/gatekeeper/internal/store"
)

func newSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Provision accounts from a YAML file",
		Long: `Create the admin and parent accounts declared in a YAML seed file.
Existing accounts (matched by email) are skipped, so seeding is idempotent.`,
		Example: `  gatekeeper seed --file kidvue-seed.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "kidvue-seed.yaml", "Seed file path")

	return cmd
}

func runSeed(file string) error {
	seed, err := config.LoadSeedFile(file)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var created, skipped int

	for _, a := range seed.Admins {
		if result := service.CheckPasswordPolicy(a.Password); !result.OK() {
			return fmt.Errorf("admin %s: password rejected: %s", a.Email, strings.Join(result.Issues, "; "))
		}
		hash, err := service.HashPassword(a.Password)
		if err != nil {
			return fmt.Errorf("admin %s: %w", a.Email, err)
		}
		admin := &model.Admin{
			Email:        a.Email,
			PasswordHash: hash,
			Name:         a.Name,
			Role:         a.AdminRole(),
			IsActive:     true,
		}
		if err := st.CreateAdmin(ctx, admin); err != nil {
			if errors.Is(err, store.ErrDuplicateEmail) {
				skipped++
				continue
			}
			return fmt.Errorf("admin %s: %w", a.Email, err)
		}
		fmt.Printf("Created %s %s\n", admin.Role, admin.Email)
		created++
	}

	for _, u := range seed.Users {
		if result := service.CheckPasswordPolicy(u.Password); !result.OK() {
			return fmt.Errorf("user %s: password rejected: %s", u.Email, strings.Join(result.Issues, "; "))
		}
		hash, err := service.HashPassword(u.Password)
		if err != nil {
			return fmt.Errorf("user %s: %w", u.Email, err)
		}
		user := &model.User{
			Email:        u.Email,
			PasswordHash: hash,
			Name:         u.Name,
			IsActive:     true,
		}
		if err := st.CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrDuplicateEmail) {
				skipped++
				continue
			}
			return fmt.Errorf("user %s: %w", u.Email, err)
		}
		fmt.Printf("Created user %s\n", user.Email)
		created++
	}

	fmt.Printf("Seed complete: %d created, %d already existed\n", created, skipped)
	return nil
}
