package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

// migrator — операции схемы, которыми пользуется CLI.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.MigrationState, error)
	Close() error
}

var openMigrator = func(ctx context.Context, dsn string) (migrator, error) {
	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func main() {
	_ = godotenv.Load()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
}

func newApp(out io.Writer) *cli.App {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "dsn",
			Usage:   "PostgreSQL DSN",
			EnvVars: []string{"CHECKOUT_POSTGRES_DSN"},
		},
		&cli.DurationFlag{Name: "timeout", Value: defaultTimeout, Usage: "overall timeout"},
	}
	stepsFlag := func(usage string) cli.Flag {
		return &cli.IntFlag{Name: "steps", Usage: usage}
	}

	return &cli.App{
		Name:   "migrate",
		Usage:  "manage checkout PostgreSQL schema",
		Flags:  flags,
		Writer: out,
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply up migrations",
				Flags: []cli.Flag{stepsFlag("number of migrations to apply (0 = all)")},
				Action: withStore(func(ctx context.Context, c *cli.Context, m migrator) error {
					if err := m.MigrateUp(ctx, c.Int("steps")); err != nil {
						return fmt.Errorf("migrate up: %w", err)
					}
					return printStatus(ctx, c.App.Writer, m, "migrate up ok")
				}),
			},
			{
				Name:  "down",
				Usage: "roll back migrations",
				Flags: []cli.Flag{stepsFlag("number of migrations to roll back (default 1)")},
				Action: withStore(func(ctx context.Context, c *cli.Context, m migrator) error {
					if err := m.MigrateDown(ctx, c.Int("steps")); err != nil {
						return fmt.Errorf("migrate down: %w", err)
					}
					return printStatus(ctx, c.App.Writer, m, "migrate down ok")
				}),
			},
			{
				Name:  "status",
				Usage: "print current schema version",
				Action: withStore(func(ctx context.Context, c *cli.Context, m migrator) error {
					return printStatus(ctx, c.App.Writer, m, "migration status")
				}),
			},
		},
	}
}

// withStore открывает подключение по --dsn и закрывает его после команды.
func withStore(fn func(context.Context, *cli.Context, migrator) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		dsn := strings.TrimSpace(c.String("dsn"))
		if dsn == "" {
			return fmt.Errorf("CHECKOUT_POSTGRES_DSN (or --dsn) is required")
		}

		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()

		m, err := openMigrator(ctx, dsn)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		defer m.Close()

		return fn(ctx, c, m)
	}
}

func printStatus(ctx context.Context, out io.Writer, m migrator, prefix string) error {
	state, err := m.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	_, err = fmt.Fprintf(out, "%s: version=%d dirty=%t\n", prefix, state.Version, state.Dirty)
	return err
}
