package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pthm/m2m/internal/cli"
	"github.com/pthm/m2m/pkg/cleanup"
	"github.com/pthm/m2m/pkg/dbops"
	"github.com/pthm/m2m/pkg/definition"
)

var statusDB string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show relationship status",
	Long:  `Show the relationship tables, the legacy migration state and relationship counts.`,
	Example: `  # Check status
  m2m status --db postgres://localhost/mydb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, statusDB)
		if err != nil {
			return err
		}
		defer e.Close()

		ops := dbops.New(e.db, e.catalog, dbops.WithLogger(logger))
		missing, err := ops.MissingTables(ctx)
		if err != nil {
			return cli.GeneralError("checking tables", err)
		}
		if len(missing) > 0 {
			fmt.Printf("Tables:         %d missing\n", len(missing))
		} else {
			fmt.Println("Tables:         present")
		}

		c := newController(e)
		enabled, err := c.IsEnabled(ctx)
		if err != nil {
			return cli.GeneralError("reading migration state", err)
		}
		progress, running, err := c.InProgress(ctx)
		if err != nil {
			return cli.GeneralError("reading migration state", err)
		}
		switch {
		case running:
			fmt.Printf("Migration:      in progress (run %s, %d items per step)\n", progress.RunID, progress.ItemsPerStep)
		case enabled:
			fmt.Println("Migration:      finished")
		default:
			fmt.Println("Migration:      not run")
		}

		if len(missing) > 0 {
			fmt.Println("\nRun 'm2m migrate' to create the relationship tables.")
			return nil
		}

		defs, err := definition.NewRepository(ops, e.db).All(ctx)
		if err != nil {
			return cli.GeneralError("listing relationships", err)
		}
		fmt.Printf("Relationships:  %d\n", len(defs))
		for _, def := range defs {
			n, err := ops.CountAssociations(ctx, def.ID)
			if err != nil {
				return cli.GeneralError("counting associations", err)
			}
			state := "active"
			if !def.IsActive {
				state = "inactive"
			}
			fmt.Printf("  %-30s %-8s %-12s %d associations\n", def.Slug, state, def.CardinalityType(), n)
		}

		dangling, err := newCleaner(e, nil, nil).DanglingCount(ctx)
		if err != nil {
			return cli.GeneralError("counting dangling intermediary posts", err)
		}
		fmt.Printf("Dangling posts: %d\n", dangling)

		notices, err := e.host.Notices(ctx)
		if err != nil {
			return cli.GeneralError("reading notices", err)
		}
		if msg, ok := notices[cleanup.NoticeID]; ok {
			fmt.Printf("\nNotice: %s\n", msg)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusDB, "db", "", "database URL")
}
