package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kidvue/gatekeeper/internal/service"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage issued tokens",
		Long:  "Sweep expired token records and revoke outstanding sessions.",
	}

	cmd.AddCommand(newTokenSweepCmd())
	cmd.AddCommand(newTokenRevokeCmd())

	return cmd
}

func newTokenSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired token records",
		Long:  "One-shot cleanup of token records whose expiry has passed. The serve command runs this on a schedule; use this for manual maintenance.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenSweep()
		},
	}
}

func runTokenSweep() error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tokens := service.NewTokenService(st, jwtSecret(), 0, 0)
	n, err := tokens.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	fmt.Printf("Deleted %d expired token record(s)\n", n)
	return nil
}

func newTokenRevokeCmd() *cobra.Command {
	var subjectID string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke all tokens for a subject",
		Example: `  gatekeeper token revoke --subject 8f14e45f-ceea-4672-9b13-2f6a1e2d9a01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenRevoke(subjectID)
		},
	}

	cmd.Flags().StringVar(&subjectID, "subject", "", "Subject ID whose tokens should be revoked (required)")
	cmd.MarkFlagRequired("subject")

	return cmd
}

func runTokenRevoke(subjectID string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tokens := service.NewTokenService(st, jwtSecret(), 0, 0)
	n, err := tokens.RevokeAll(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("revoke: %w", err)
	}

	fmt.Printf("Revoked %d token(s) for subject %s\n", n, subjectID)
	return nil
}
