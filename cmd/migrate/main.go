package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
)

const commandTimeout = 30 * time.Second

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run управляет схемой чекаута: -direction=up|down|status.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	direction := flags.String("direction", "up", "migration direction: up|down|status")
	steps := flags.Int("steps", 0, "number of revisions to apply/rollback (0=all for up, 1 for down)")
	dsn := flags.String("dsn", "", "PostgreSQL DSN (fallback: CHECKOUT_POSTGRES_DSN)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	command := strings.ToLower(strings.TrimSpace(*direction))
	switch command {
	case "up", "down", "status":
	default:
		return fmt.Errorf("unsupported direction %q (use up|down|status)", *direction)
	}

	target := strings.TrimSpace(*dsn)
	if target == "" {
		target = strings.TrimSpace(os.Getenv("CHECKOUT_POSTGRES_DSN"))
	}
	if target == "" {
		return errors.New("CHECKOUT_POSTGRES_DSN (or -dsn) is required")
	}

	store, err := postgres.Open(ctx, target)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch command {
	case "up":
		if err := store.MigrateUp(ctx, *steps); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		return printStatus(ctx, store, stdout, "migrate up ok")
	case "down":
		n := *steps
		if n <= 0 {
			n = 1
		}
		if err := store.MigrateDown(ctx, n); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		return printStatus(ctx, store, stdout, "migrate down ok")
	default:
		return printStatus(ctx, store, stdout, "schema status")
	}
}

func printStatus(ctx context.Context, store *postgres.Store, stdout io.Writer, label string) error {
	version, applied, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "%s: version=%d applied=%d\n", label, version, applied)
	return nil
}
