package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/ilramdhan/doorcalc/config"
	"github.com/ilramdhan/doorcalc/pkg/database"
	"github.com/ilramdhan/doorcalc/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger.New(logger.Options{Level: cfg.Log.Level, Format: "text"})

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	path := fs.String("path", "migrations", "Path to migrations directory")
	dsn := fs.String("database", "", "Database URL (defaults to DB_* settings)")

	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <command> [flags]")
		fmt.Println("Commands: up, down [steps], status, force <version>")
		os.Exit(1)
	}
	command := os.Args[1]
	_ = fs.Parse(os.Args[2:])

	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}
	if *dsn == "" {
		*dsn = cfg.Database.DSN()
	}

	m, err := database.NewMigrator(*path, *dsn)
	if err != nil {
		fatal("failed to open migrations", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			fatal("migration failed", err)
		}
		slog.Info("migrations applied")

	case "down":
		steps := 1
		if fs.NArg() > 0 {
			if steps, err = strconv.Atoi(fs.Arg(0)); err != nil {
				fatal("invalid step count", err)
			}
		}
		if err := m.Down(steps); err != nil {
			fatal("rollback failed", err)
		}
		slog.Info("rolled back", slog.Int("steps", steps))

	case "status":
		version, dirty, err := m.Version()
		if err != nil {
			fatal("failed to read version", err)
		}
		fmt.Printf("Current version: %d (dirty: %v)\n", version, dirty)

	case "force":
		if fs.NArg() < 1 {
			fatal("force requires a version", fmt.Errorf("usage: migrate force <version>"))
		}
		version, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			fatal("invalid version", err)
		}
		if err := m.Force(version); err != nil {
			fatal("force failed", err)
		}
		slog.Info("forced version", slog.Int("version", version))

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, slog.Any("error", err))
	os.Exit(1)
}
