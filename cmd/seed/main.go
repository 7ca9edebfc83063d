// seed creates development accounts in the configured store and completes email verification for
// local accounts. Idempotent: existing accounts are left alone.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"coliving-platform/backend/internal/config"
	"coliving-platform/backend/internal/identity/domain"
	"coliving-platform/backend/internal/identity/provider"
	identityrepo "coliving-platform/backend/internal/identity/repository"
	"coliving-platform/backend/internal/security"
	"coliving-platform/backend/internal/storage"
	userdomain "coliving-platform/backend/internal/user/domain"
	userrepo "coliving-platform/backend/internal/user/repository"
)

const devPassword = "Coliving@2026"

type devAccount struct {
	email, fullName, business string
	userType                  userdomain.UserType
}

var devAccounts = []devAccount{
	{email: "seeker@example.com", fullName: "Sam Seeker", userType: userdomain.UserTypeUser},
	{email: "owner@example.com", fullName: "Olive Owner", business: "Olive Lofts", userType: userdomain.UserTypeOwner},
	{email: "admin@example.com", fullName: "Ada Admin", userType: userdomain.UserTypeAdmin},
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "seed",
		Short:         "Development data for the session service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(accountsCmd(), verifyEmailCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

// withStores loads config, opens storage and runs fn. Only the local provider keeps credentials here.
func withStores(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, st *storage.Stores) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.IdentityProvider != config.ProviderLocal {
		return fmt.Errorf("IDENTITY_PROVIDER=%s keeps accounts upstream; seed only manages local accounts", cfg.IdentityProvider)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	st, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return fn(ctx, cfg, st)
}

func accountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "Create verified seeker, owner and admin accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, func(ctx context.Context, cfg *config.Config, st *storage.Stores) error {
				hasher := security.NewHasher(cfg.BcryptCost)
				for _, a := range devAccounts {
					created, err := seedAccount(ctx, st.Credentials, st.Profiles, hasher, a)
					if err != nil {
						return fmt.Errorf("%s: %w", a.email, err)
					}
					status := "exists"
					if created {
						status = "created"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-6s %s\n", a.email, a.userType, status)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "password for all accounts: %s\n", devPassword)
				return nil
			})
		},
	}
}

func seedAccount(ctx context.Context, creds identityrepo.Repository, profiles userrepo.Repository, hasher *security.Hasher, a devAccount) (bool, error) {
	existing, err := creds.GetByEmail(ctx, a.email)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	cred := &domain.Credential{
		ID:            uuid.NewString(),
		Subject:       uuid.NewString(),
		Email:         a.email,
		PasswordHash:  hash,
		DisplayName:   a.fullName,
		Role:          string(a.userType),
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := creds.Create(ctx, cred); err != nil {
		if errors.Is(err, identityrepo.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, profiles.Upsert(ctx, &userdomain.Profile{
		ID:           cred.Subject,
		Email:        a.email,
		FullName:     a.fullName,
		BusinessName: a.business,
		UserType:     a.userType,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func verifyEmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-email <email>",
		Short: "Mark a local account's email as verified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, func(ctx context.Context, cfg *config.Config, st *storage.Stores) error {
				local := provider.NewLocal(st.Credentials, security.NewHasher(cfg.BcryptCost), false)
				if err := local.VerifyEmail(ctx, args[0]); err != nil {
					if errors.Is(err, identityrepo.ErrNotFound) {
						return fmt.Errorf("no local account for %s", args[0])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "verified %s\n", domain.NormalizeEmail(args[0]))
				return nil
			})
		},
	}
}
