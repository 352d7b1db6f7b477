// Package bootstrap performs first-boot setup that must happen exactly once
// per cluster, currently seeding the initial admin account.
package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

const adminUsername = "admin"

// SeedAdminUser creates the initial admin account when the user table is
// empty. The password comes from DROMIO_ADMIN_PASSWORD, or is generated and
// printed once when unset. Racing nodes are fine: the username is unique and
// losing the race is not an error.
func SeedAdminUser(ctx context.Context, st store.AdminStore) error {
	n, err := st.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	password := os.Getenv("DROMIO_ADMIN_PASSWORD")
	generated := password == ""
	if generated {
		password, err = randomPassword()
		if err != nil {
			return err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	if _, err := st.CreateUser(ctx, adminUsername, string(hash), store.RoleAdmin); err != nil {
		if errors.Is(err, store.ErrConflict) {
			slog.Info("admin account already seeded by another node")
			return nil
		}
		return err
	}

	if generated {
		// Printed to stdout on purpose: shown once, never stored in plaintext.
		fmt.Printf("initial admin account created, username=%s password=%s\n", adminUsername, password)
	}
	slog.Info("admin account seeded", "username", adminUsername)
	return nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate admin password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
