// Command migrate applies the schema migrations under migrations/ to the
// configured PostgreSQL database. Connection settings come from the same
// DB_* environment variables the server reads.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/stratohost/certd/internal/config"
)

func main() {
	path := flag.String("path", "migrations", "Path to the migrations directory")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	if err := run(*path, args[0], args[1:]); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [-path dir] <command>\n\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  up         Apply all pending migrations")
	fmt.Fprintln(os.Stderr, "  down N     Roll back the last N migrations")
	fmt.Fprintln(os.Stderr, "  version    Print the current schema version")
	fmt.Fprintln(os.Stderr, "  force V    Mark the schema as version V after a failed migration")
	fmt.Fprintln(os.Stderr, "\nDatabase settings are read from DB_HOST, DB_PORT, DB_USER,")
	fmt.Fprintln(os.Stderr, "DB_PASSWORD, DB_NAME and DB_SSLMODE.")
}

func run(path, cmd string, args []string) error {
	m, err := open(path)
	if err != nil {
		return err
	}
	defer m.Close()

	switch cmd {
	case "up":
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				log.Println("schema is up to date")
				return nil
			}
			return err
		}
	case "down":
		if len(args) < 1 {
			return errors.New("down requires the number of migrations to roll back")
		}
		steps, err := strconv.Atoi(args[0])
		if err != nil || steps < 1 {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		if err := m.Steps(-steps); err != nil {
			return err
		}
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("no migrations applied")
			return nil
		}
		if err != nil {
			return err
		}
		if dirty {
			log.Printf("version %d (dirty, repair with: force %d)", v, v)
		} else {
			log.Printf("version %d", v)
		}
		return nil
	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(v)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	v, _, _ := m.Version()
	log.Printf("schema now at version %d", v)
	return nil
}

func open(path string) (*migrate.Migrate, error) {
	cfg := config.Load()

	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations path: %w", err)
	}
	return migrate.NewWithDatabaseInstance("file://"+abs, cfg.Database.DBName, driver)
}
