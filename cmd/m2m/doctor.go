package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm/m2m/internal/cli"
	"github.com/pthm/m2m/internal/doctor"
)

var (
	doctorDB      string
	doctorVerbose bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks",
	Long:  `Run health checks on the relationship tables and their data.`,
	Example: `  # Run health checks
  m2m doctor --db postgres://localhost/mydb

  # Run with verbose output
  m2m doctor --db postgres://localhost/mydb --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, doctorDB)
		if err != nil {
			return err
		}
		defer e.Close()

		if !quiet {
			fmt.Println("m2m doctor - Health Check")
		}

		d := doctor.New(e.db, e.catalog, e.host, doctor.WithLocalization(e.localization))
		report, err := d.Run(ctx)
		if err != nil {
			return cli.GeneralError("running doctor", err)
		}

		report.Print(os.Stdout, resolveBool(doctorVerbose, verbose > 0))

		if report.HasErrors() {
			return cli.IncompleteError("health checks failed", nil)
		}
		return nil
	},
}

func init() {
	f := doctorCmd.Flags()
	f.StringVar(&doctorDB, "db", "", "database URL")
	f.BoolVar(&doctorVerbose, "verbose", false, "show detailed output")
}
