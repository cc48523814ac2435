// Command migrate manages the PostgreSQL schema of the migration service.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/crmigrate/backend/internal/infrastructure/config"
	"github.com/crmigrate/backend/internal/infrastructure/logger"
	"github.com/crmigrate/backend/internal/infrastructure/schema"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const usage = `CRM migration service schema tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down [n|all]          Roll back n migrations (default 1) or all of them
  version               Show current migration version
  status                List migrations and mark the applied ones
  force <version>       Force set migration version after a failed migration
  list                  List available migrations

Flags:
  -path string          Path to migrations directory (default: nearest ./migrations)
  -log-level string     Log level: debug, info, warn, error (default: info)

Environment Variables:
  CRMIGRATE_DATABASE_HOST, CRMIGRATE_DATABASE_PORT, CRMIGRATE_DATABASE_USER,
  CRMIGRATE_DATABASE_PASSWORD, CRMIGRATE_DATABASE_DBNAME, CRMIGRATE_DATABASE_SSLMODE`

var errUsage = errors.New("invalid usage")

// migrator is the part of schema.Migrator the commands drive
type migrator interface {
	Up() error
	Down(steps int) error
	Version() (uint, bool, error)
	Force(version int) error
}

func main() {
	var migrationsPath, logLevel string
	flag.StringVar(&migrationsPath, "path", "", "Path to migrations directory (default: nearest ./migrations)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Println(usage)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	migrationsPath, err = resolvePath(migrationsPath)
	if err != nil {
		log.Fatal("Failed to resolve migrations path", zap.Error(err))
	}
	log.Info("Migration CLI started",
		zap.String("command", args[0]),
		zap.String("migrations_path", migrationsPath),
	)

	if err := run(args, migrationsPath, os.Stdout, func() (migrator, func(), error) {
		return openMigrator(migrationsPath, log)
	}); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Println(usage)
		}
		log.Fatal("Command failed", zap.String("command", args[0]), zap.Error(err))
	}
}

func resolvePath(path string) (string, error) {
	if path == "" {
		cwd, _ := os.Getwd()
		if path = schema.FindMigrationsPath(cwd); path == "" {
			path = schema.DirName
		}
	}
	return filepath.Abs(path)
}

func openMigrator(path string, log *zap.Logger) (migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	m, err := schema.New(db, path, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return m, func() {
		_ = m.Close()
		_ = db.Close()
	}, nil
}

// run executes one command. Commands that only read the migrations
// directory never open the database.
func run(args []string, path string, out io.Writer, open func() (migrator, func(), error)) error {
	command := args[0]
	if command == "list" {
		files, err := schema.ListMigrations(path)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(out, "  -", f)
		}
		return nil
	}

	switch command {
	case "up", "down", "version", "status", "force":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	m, closeFn, err := open()
	if err != nil {
		return err
	}
	defer closeFn()

	switch command {
	case "up":
		return m.Up()
	case "down":
		steps, err := parseDownSteps(args[1:])
		if err != nil {
			return err
		}
		return m.Down(steps)
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "version %d dirty=%t\n", version, dirty)
		return nil
	case "status":
		return printStatus(out, m, path)
	default:
		if len(args) < 2 {
			return fmt.Errorf("%w: force requires a version", errUsage)
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: invalid version %q", errUsage, args[1])
		}
		return m.Force(version)
	}
}

// parseDownSteps reads the optional "n" or "all" argument of down. All
// maps to zero, which Migrator.Down treats as every migration.
func parseDownSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	if args[0] == "all" {
		return 0, nil
	}
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps < 1 {
		return 0, fmt.Errorf("%w: invalid step count %q", errUsage, args[0])
	}
	return steps, nil
}

func printStatus(out io.Writer, m migrator, path string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	files, err := schema.ListMigrations(path)
	if err != nil {
		return err
	}
	for _, f := range files {
		prefix, _, _ := strings.Cut(f, "_")
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			return fmt.Errorf("migration %q has no numeric version", f)
		}
		mark := " "
		switch {
		case uint(v) == version && dirty:
			mark = "!"
		case uint(v) <= version:
			mark = "x"
		}
		fmt.Fprintf(out, "[%s] %s\n", mark, f)
	}
	return nil
}
