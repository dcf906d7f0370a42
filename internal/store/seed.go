package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/JoelGonzalez08/TerraWeb/pkg/roles"
)

type seedAccount struct {
	Username string
	Password string
	Role     string
}

var defaultAccounts = []seedAccount{
	{Username: "admin", Password: "admin123", Role: roles.Admin},
	{Username: "technician", Password: "tech123", Role: roles.Technician},
	{Username: "user1", Password: "user123", Role: roles.User},
}

// SeedDefaultUsers provisions the development accounts. It refuses to run in
// production: how the first real admin account is provisioned there is an
// open operational question, and guessing a bootstrap path would paper over it.
func SeedDefaultUsers(ctx context.Context, users UserStore, production bool) error {
	if production {
		return fmt.Errorf("default account seeding is disabled in production")
	}
	for _, acc := range defaultAccounts {
		if _, err := users.GetUserByName(ctx, acc.Username); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(acc.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		ph := string(hash)
		u := &User{ID: uuid.New(), UserName: acc.Username, Role: acc.Role, PasswordHash: &ph}
		if err := users.CreateUser(ctx, u); err != nil {
			return err
		}
		slog.Info("seeded default account", "username", acc.Username, "role", acc.Role)
	}
	return nil
}
