package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ittiee/liff-auth/internal/domain"
	"github.com/ittiee/liff-auth/internal/password"
	"github.com/ittiee/liff-auth/internal/repository"
)

type seedUser struct {
	user     domain.User
	password string
}

// Demo directory carried over from the original mock identity source.
var demoUsers = []seedUser{
	{
		user: domain.User{
			ID:        "1",
			Email:     "user@example.com",
			Name:      "John Doe",
			AvatarURL: "https://images.unsplash.com/photo-1472099645785-5658abf4ff4e?w=150&h=150&fit=crop&crop=face",
			Roles:     []string{"user"},
		},
		password: "password123",
	},
	{
		user: domain.User{
			ID:        "2",
			Email:     "admin@example.com",
			Name:      "Admin User",
			AvatarURL: "https://images.unsplash.com/photo-1507003211169-0a1dd7228f2d?w=150&h=150&fit=crop&crop=face",
			Roles:     []string{"user", "admin"},
		},
		password: "admin123",
	},
}

// SeedUsers loads the demo directory on startup.
func SeedUsers(lc fx.Lifecycle, seeder repository.Seeder, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return seedUsers(seeder, logger)
		},
	})
}

func seedUsers(seeder repository.Seeder, logger *zap.Logger) error {
	for _, entry := range demoUsers {
		hashed, err := password.Hash(entry.password)
		if err != nil {
			return fmt.Errorf("seed hash password: %w", err)
		}
		seeder.Seed(entry.user, hashed)
		if logger != nil {
			logger.Info("seeded directory user",
				zap.String("user_id", entry.user.ID),
				zap.String("email", entry.user.Email),
				zap.Strings("roles", entry.user.Roles),
			)
		}
	}
	return nil
}
