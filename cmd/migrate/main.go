package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"labguard/internal/config"
	"labguard/internal/database"
	"labguard/internal/database/migrations"
)

func main() {
	var (
		command = flag.String("command", "", "Migration command: up, down, version, status, validate, create")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		name    = flag.String("name", "", "Migration name (for create)")
	)
	flag.Parse()

	if *command == "" {
		fmt.Println("Usage: go run cmd/migrate/main.go -command [up|down|version|status|validate|create] [options]")
		fmt.Println("Commands:")
		fmt.Println("  up        - Apply pending migrations")
		fmt.Println("  down      - Roll back migrations (default 1 step)")
		fmt.Println("  version   - Show current migration version")
		fmt.Println("  status    - Show applied and pending migrations")
		fmt.Println("  validate  - Check migration files for issues")
		fmt.Println("  create    - Create new migration files (-name required)")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	ctx := context.Background()
	cfg := config.NewConfig()

	db := database.NewDatabase()
	if err := db.Connect(ctx, cfg.Database.ConnString()); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrator := migrations.NewMigrator(logger, db.Pool)

	var err error
	switch *command {
	case "up":
		err = migrator.Up(ctx, *steps)

	case "down":
		n := *steps
		if n <= 0 {
			n = 1
		}
		err = migrator.Down(ctx, n)

	case "version":
		var (
			version int64
			dirty   bool
		)
		version, dirty, err = migrator.Version(ctx)
		if err == nil {
			fmt.Printf("Current version: %d\n", version)
			if dirty {
				fmt.Println("Database is in dirty state")
			}
		}

	case "status":
		var status *migrations.MigrationStatus
		status, err = migrator.Status(ctx)
		if err == nil {
			fmt.Printf("Current version: %d\n", status.Current)
			fmt.Printf("Latest available: %d\n", status.Latest)
			fmt.Printf("Applied: %d\n", len(status.Applied))
			fmt.Printf("Pending: %d\n", len(status.Pending))
			for _, m := range status.Pending {
				fmt.Printf("  - %d: %s\n", m.Version, m.Name)
			}
			if status.IsDirty {
				fmt.Println("Database is in dirty state")
			}
		}

	case "validate":
		err = migrator.ValidateMigrations()

	case "create":
		if *name == "" {
			logger.Error("migration name required for create command")
			os.Exit(1)
		}
		err = migrator.CreateMigration(*name)

	default:
		logger.Error("unknown command", "command", *command)
		os.Exit(1)
	}

	if err != nil {
		logger.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}
}
