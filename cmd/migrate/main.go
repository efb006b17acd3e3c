// Command migrate manages the PostgreSQL schema.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pricedragon/backend/internal/infrastructure/config"
	"github.com/pricedragon/backend/internal/infrastructure/logger"
	"github.com/pricedragon/backend/internal/infrastructure/migration"
	"github.com/pricedragon/backend/migrations"
	"go.uber.org/zap"
)

const defaultMigrationsDir = "migrations"

// schemaCommand runs against an open Migrator; args excludes the command name
type schemaCommand func(m *migration.Migrator, log *zap.Logger, args []string) error

var schemaCommands = map[string]schemaCommand{
	"up":   func(m *migration.Migrator, _ *zap.Logger, _ []string) error { return m.Up() },
	"down": func(m *migration.Migrator, _ *zap.Logger, _ []string) error { return m.Down() },
	"step": func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		n, err := intArg(args, "step count")
		if err != nil {
			return err
		}
		return m.Steps(n)
	},
	"force": func(m *migration.Migrator, _ *zap.Logger, args []string) error {
		v, err := intArg(args, "version")
		if err != nil {
			return err
		}
		return m.Force(v)
	},
	"version": func(m *migration.Migrator, log *zap.Logger, _ []string) error {
		st, err := m.Status()
		if err != nil {
			return err
		}
		if !st.Applied() {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Current schema version", zap.Uint("version", st.Version), zap.Bool("dirty", st.Dirty))
		return nil
	},
}

func main() {
	dir := flag.String("path", "", "Migrations directory (default: migrations compiled into the binary)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()
	_ = godotenv.Load()

	if err := run(args[0], args[1:], *dir, log); err != nil {
		log.Error("Migration command failed", zap.String("command", args[0]), zap.Error(err))
		_ = logger.Sync(log)
		os.Exit(1)
	}
}

func run(command string, args []string, dir string, log *zap.Logger) error {
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolve migrations path: %w", err)
		}
		dir = abs
	}

	// create and list only touch files
	switch command {
	case "create":
		if len(args) == 0 {
			return errors.New("migration name required: migrate create <name> [description]")
		}
		description := ""
		if len(args) > 1 {
			description = args[1]
		}
		mf, err := migration.CreateMigration(orDefault(dir), args[0], description)
		if err != nil {
			return err
		}
		log.Info("Migration created",
			zap.String("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return nil
	case "list":
		names, err := migration.ListMigrations(orDefault(dir))
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println("  -", name)
		}
		return nil
	}

	cmd, ok := schemaCommands[command]
	if !ok {
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Database.Driver == "sqlite" {
		return errors.New("SQL migrations target PostgreSQL; sqlite databases are created with auto-migrate")
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	src := migration.Source{FS: migrations.FS, Dir: dir}
	m, err := migration.Open(db, src, log)
	if err != nil {
		return err
	}
	defer m.Close()

	return cmd(m, log, args)
}

func intArg(args []string, what string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%s required", what)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", what, args[0])
	}
	return n, nil
}

func orDefault(dir string) string {
	if dir == "" {
		return defaultMigrationsDir
	}
	return dir
}

func printUsage() {
	fmt.Println(`pricedragon database migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  version               Show current migration version
  force <version>       Force set migration version
  create <name> [desc]  Create a new migration file pair
  list                  List migration files

Flags:
  -path string          Migrations directory (default: embedded migrations)
  -log-level string     Log level: debug, info, warn, error (default: info)

Connection settings come from config.toml and PD_DATABASE_* environment
variables. A .env file in the working directory is loaded first.`)
}
