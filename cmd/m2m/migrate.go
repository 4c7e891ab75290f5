package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/cli"
	"github.com/pthm/m2m/pkg/host"
	"github.com/pthm/m2m/pkg/migration"
)

var (
	migrateDB           string
	migrateItemsPerStep int
	migrateMaintenance  bool
	migrateReset        bool
	migrateStepRequest  string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate legacy relationships",
	Long: `Convert legacy post relationships into m2m relationships.

The migration creates the relationship tables, turns every legacy parent and
child post type pair into a relationship and every legacy parent reference
into an association. It runs in steps of --items-per-step legacy references.`,
	Example: `  # Run the whole migration
  m2m migrate --db postgres://localhost/mydb

  # Recreate the tables and keep the site in maintenance mode meanwhile
  m2m migrate --reset-tables --maintenance`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, migrateDB)
		if err != nil {
			return err
		}
		defer e.Close()

		opts := cfg.MigrationOptions()
		opts.UseMaintenanceMode = resolveBool(migrateMaintenance, opts.UseMaintenanceMode)
		opts.ResetTables = resolveBool(migrateReset, opts.ResetTables)
		items := resolveInt(migrateItemsPerStep, cfg.Migration.ItemsPerStep)

		return runMigrate(ctx, e, items, opts)
	},
}

var migrateStepCmd = &cobra.Command{
	Use:   "step",
	Short: "Run one migration step",
	Long: `Run a single migration step for an external driver.

The step request is read as JSON from --request, or from stdin when --request
is "-". The response is written as JSON to stdout; feed its phase, step and
first_phase_step back into the next request while "continue" is true.`,
	Example: `  # First step
  echo '{"phase":"dbdelta","step":0,"items_per_step":50}' | m2m migrate step

  # Next step
  m2m migrate step --request '{"phase":"association_migration","step":4,"first_phase_step":4,"items_per_step":50}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw := []byte(migrateStepRequest)
		if migrateStepRequest == "-" {
			var err error
			raw, err = io.ReadAll(os.Stdin)
			if err != nil {
				return cli.GeneralError("reading step request", err)
			}
		}
		var req migration.StepRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return cli.GeneralError("decoding step request", err)
		}

		e, err := openEnv(ctx, migrateDB)
		if err != nil {
			return err
		}
		defer e.Close()

		resp, stepErr := newController(e).Step(ctx, req)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return cli.GeneralError("encoding step response", err)
		}
		if stepErr != nil || resp.Status == m2m.StatusError {
			return cli.MigrationError("migration step failed", stepErr)
		}
		return nil
	},
}

func init() {
	f := migrateCmd.PersistentFlags()
	f.StringVar(&migrateDB, "db", "", "database URL")

	rf := migrateCmd.Flags()
	rf.IntVar(&migrateItemsPerStep, "items-per-step", 0, "legacy references migrated per step (default from config)")
	rf.BoolVar(&migrateMaintenance, "maintenance", false, "keep the site in maintenance mode while migrating")
	rf.BoolVar(&migrateReset, "reset-tables", false, "drop and recreate the relationship tables first")

	migrateStepCmd.Flags().StringVar(&migrateStepRequest, "request", "-", `step request JSON, or "-" for stdin`)
	migrateCmd.AddCommand(migrateStepCmd)
}

func newController(e *env) *migration.Controller {
	return migration.New(e.db, e.catalog, e.host, e.host,
		migration.WithLogger(logger),
		migration.WithLocalization(e.localization),
		migration.WithMaintenance(host.NewFileMaintenance(cfg.Migration.MaintenanceFile)))
}

func runMigrate(ctx context.Context, e *env, items int, opts migration.Options) error {
	c := newController(e)

	if p, ok, err := c.InProgress(ctx); err != nil {
		return cli.GeneralError("reading migration state", err)
	} else if ok {
		logger.Warn("restarting an unfinished migration run",
			zap.String("run_id", p.RunID), zap.Int("items_per_step", p.ItemsPerStep))
	}

	if !quiet {
		fmt.Printf("Migrating legacy relationships (%d items per step)...\n", items)
	}

	resp, err := c.Run(ctx, items, opts, func(r migration.StepResponse) {
		if quiet {
			return
		}
		fmt.Printf("  [%s] %s step %d", r.Status, r.Phase, r.Step)
		if r.Processed > 0 {
			fmt.Printf(": %d legacy references", r.Processed)
		}
		fmt.Println()
		if verbose > 0 && r.Message != "" {
			fmt.Println(indent(r.Message))
		}
	})
	if err != nil {
		if resp.Message != "" && !quiet {
			fmt.Println(indent(resp.Message))
		}
		return cli.MigrationError("migration failed", err)
	}

	if !quiet {
		if resp.Status == m2m.StatusWarning {
			fmt.Println("Migration finished with warnings. Run with -v to see them.")
		} else {
			fmt.Println("Migration finished.")
		}
	}
	return nil
}

func indent(s string) string {
	return "      " + strings.ReplaceAll(s, "\n", "\n      ")
}
