// Schema migration CLI for the marketd bar and report archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/config"
	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/store"
)

func main() {
	command := flag.String("command", "migrate", "Command to run: migrate or status")
	configPath := flag.String("config", "", "Path to config file")
	dsn := flag.String("dsn", os.Getenv("MARKETD_DATABASE_DSN"), "PostgreSQL connection string (overrides config)")
	flag.Parse()

	if *dsn == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(2)
		}
		if !cfg.Database.Enabled {
			fmt.Fprintln(os.Stderr, "Database is disabled in config; pass -dsn or enable database.enabled")
			os.Exit(2)
		}
		*dsn = cfg.Database.GetDSN()
	}

	migrator, err := store.NewMigrator(*dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open migration connection: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close migration connection: %v\n", err)
		}
	}()

	ctx := context.Background()

	switch *command {
	case "migrate":
		if err := migrator.Migrate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied successfully")
	case "status":
		current, pending, err := migrator.Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read migration status: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Schema version: %d (%d pending)\n", current, pending)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s (expected migrate or status)\n", *command)
		os.Exit(2)
	}
}
