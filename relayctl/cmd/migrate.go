package cmd

import (
	"context"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/pflag"

	"github.com/Driving-Capstone/DrivingCoach-BE/backend"
	"github.com/Driving-Capstone/DrivingCoach-BE/backend/psql"
)

func init() {
	register("migrate", &migrateCmd{})
}

type migrateCmd struct {
	dsn    string
	down   bool
	max    int
	dryRun bool
}

func (migrateCmd) desc() string  { return "apply or revert record store migrations" }
func (migrateCmd) usage() string { return "migrate [--dsn=<dsn>] [--down] [--max=N] [--dry-run]" }

func (migrateCmd) longdesc() string {
	return `
	Bring the postgres record store schema up to date. With --down the most
	recent migration is reverted instead; pass --max to revert more than
	one. With --dry-run the pending migrations are listed and nothing is
	applied.
`[1:]
}

func (cmd *migrateCmd) flags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flags.StringVar(&cmd.dsn, "dsn", backend.Config.DB.DSN, "postgres dsn")
	flags.BoolVar(&cmd.down, "down", false, "revert instead of apply")
	flags.IntVar(&cmd.max, "max", 0, "most migrations to run (0: all up, or one down)")
	flags.BoolVar(&cmd.dryRun, "dry-run", false, "list pending migrations only")
	return flags
}

func (cmd *migrateCmd) run(ctx context.Context, args []string) error {
	if cmd.dsn == "" {
		return fmt.Errorf("migrate: --dsn is required")
	}

	store, err := psql.Open(ctx, cmd.dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	if cmd.dryRun {
		pending, err := psql.Pending(store.DB)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Fprintln(out, "schema is up to date")
			return nil
		}
		for i, m := range pending {
			fmt.Fprintf(out, "[%d]\t%s\n", i+1, m.Id)
		}
		return nil
	}

	dir, max := migrate.Up, cmd.max
	if cmd.down {
		dir = migrate.Down
		if max == 0 {
			max = 1
		}
	}

	n, err := psql.Migrate(store.DB, dir, max)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d migrations applied (%s)\n", n, psql.RedactDSN(cmd.dsn))
	return nil
}
