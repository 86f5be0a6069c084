package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/config"
	"github.com/edustack/edustack/internal/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a super-admin and a sample teacher",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func strPtr(s string) *string { return &s }

var demoUsers = []user.CreateUserInput{
	{
		Email:     "admin@school.edu",
		Password:  "Admin123!@#",
		Role:      string(auth.RoleSuperAdmin),
		FirstName: "System",
		LastName:  "Administrator",
	},
	{
		Email:       "teacher@school.edu",
		Password:    "Teacher123!",
		Role:        string(auth.RoleTeacher),
		FirstName:   "Jane",
		LastName:    "Doe",
		PhoneNumber: strPtr("+1 555 0100"),
	},
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := user.NewStore(pool)

	created := 0
	for _, input := range demoUsers {
		u, err := users.Create(ctx, input)
		if errors.Is(err, user.ErrDuplicateEmail) {
			slog.Info("user already exists, skipping", "email", input.Email)
			continue
		}
		if err != nil {
			return fmt.Errorf("creating user %q: %w", input.Email, err)
		}
		slog.Info("created user", "email", u.Email, "id", u.ID, "role", u.Role)
		created++
	}

	fmt.Printf("\n=== Demo Users Seeded (%d new) ===\n", created)
	for _, input := range demoUsers {
		fmt.Printf("%-14s %s / %s\n", input.Role, input.Email, input.Password)
	}
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  edustack login --email %s\n", demoUsers[0].Email)
	fmt.Printf("  edustack whoami\n")

	return nil
}
