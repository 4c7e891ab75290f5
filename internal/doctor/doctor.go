// Package doctor provides health checks for the m2m relationship tables.
//
// The doctor command validates that the relationship engine is set up and
// consistent by checking the tables, the legacy migration state, cardinality
// constraints of every relationship and dangling intermediary posts.
//
// Example usage:
//
//	d := doctor.New(db, catalog, h)
//	report, err := d.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Print(os.Stdout, true) // verbose=true
package doctor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/pkg/cleanup"
	"github.com/pthm/m2m/pkg/dbops"
	"github.com/pthm/m2m/pkg/definition"
	"github.com/pthm/m2m/pkg/host"
	"github.com/pthm/m2m/pkg/migration"
	"github.com/pthm/m2m/pkg/schema"
)

// Status represents the result of a health check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical issue that will cause failures.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator symbol for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

// CheckResult represents the outcome of a single health check.
type CheckResult struct {
	// Category groups related checks (e.g., "Tables", "Cardinality").
	Category string

	// Name is a short identifier for the check.
	Name string

	// Status is the check outcome.
	Status Status

	// Message is a human-readable description of the result.
	Message string

	// Details provides additional information for verbose output.
	Details string

	// FixHint suggests how to resolve issues.
	FixHint string
}

// Report contains all health check results.
type Report struct {
	Checks []CheckResult

	// Summary counts.
	Passed   int
	Warnings int
	Errors   int
}

// AddCheck adds a check result and updates summary counts.
func (r *Report) AddCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	switch check.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// Print writes the report to the given writer.
func (r *Report) Print(w io.Writer, verbose bool) {
	categories := make(map[string][]CheckResult)
	var categoryOrder []string
	for _, check := range r.Checks {
		if _, exists := categories[check.Category]; !exists {
			categoryOrder = append(categoryOrder, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	for _, cat := range categoryOrder {
		_, _ = fmt.Fprintf(w, "\n%s\n", cat)
		for _, check := range categories[cat] {
			_, _ = fmt.Fprintf(w, "  %s %s\n", check.Status.Symbol(), check.Message)
			if verbose && check.Details != "" {
				for _, line := range strings.Split(check.Details, "\n") {
					_, _ = fmt.Fprintf(w, "      %s\n", line)
				}
			}
			if check.Status != StatusPass && check.FixHint != "" {
				_, _ = fmt.Fprintf(w, "      Fix: %s\n", check.FixHint)
			}
		}
	}

	_, _ = fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n",
		r.Passed, r.Warnings, r.Errors)
}

// HasErrors returns true if any check failed.
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// Host is what the doctor reads from the host system.
type Host interface {
	host.Elements
	host.Options
	// Notices returns the notices currently shown, keyed by ID.
	Notices(ctx context.Context) (map[string]string, error)
}

// Doctor performs health checks on the relationship tables.
type Doctor struct {
	db           m2m.Querier
	catalog      schema.Catalog
	host         Host
	localization host.Localization

	ops *dbops.Operations

	// Populated during Run.
	tablesReady bool
}

// Option configures a Doctor.
type Option func(*Doctor)

// WithLocalization makes the dangling intermediary check follow translations.
func WithLocalization(l host.Localization) Option {
	return func(d *Doctor) { d.localization = l }
}

// New creates a new Doctor instance.
func New(db m2m.Querier, catalog schema.Catalog, h Host, opts ...Option) *Doctor {
	d := &Doctor{
		db:           db,
		catalog:      catalog,
		host:         h,
		localization: host.NoLocalization{},
		ops:          dbops.New(db, catalog),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes all health checks and returns a report.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	if err := d.checkTables(ctx, report); err != nil {
		return nil, fmt.Errorf("checking tables: %w", err)
	}
	if err := d.checkMigration(ctx, report); err != nil {
		return nil, fmt.Errorf("checking migration state: %w", err)
	}
	if !d.tablesReady {
		return report, nil
	}
	if err := d.checkCardinality(ctx, report); err != nil {
		return nil, fmt.Errorf("checking cardinality: %w", err)
	}
	if err := d.checkDangling(ctx, report); err != nil {
		return nil, fmt.Errorf("checking dangling intermediary posts: %w", err)
	}

	return report, nil
}

func (d *Doctor) checkTables(ctx context.Context, report *Report) error {
	missing, err := d.ops.MissingTables(ctx)
	if err != nil {
		return err
	}

	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, t := range missing {
			names[i] = d.catalog.Name(t)
		}
		report.AddCheck(CheckResult{
			Category: "Tables",
			Name:     "exist",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%d relationship tables are missing", len(missing)),
			Details:  strings.Join(names, "\n"),
			FixHint:  "Run 'm2m migrate' to create them",
		})
		return nil
	}

	d.tablesReady = true
	report.AddCheck(CheckResult{
		Category: "Tables",
		Name:     "exist",
		Status:   StatusPass,
		Message:  "Relationship tables exist",
	})
	return nil
}

func (d *Doctor) checkMigration(ctx context.Context, report *Report) error {
	var enabled bool
	if _, err := d.host.GetOption(ctx, migration.EnabledOption, &enabled); err != nil {
		return err
	}

	var legacy map[string]any
	hasLegacy, err := d.host.GetOption(ctx, migration.LegacyRelationshipsOption, &legacy)
	if err != nil {
		return err
	}

	var progress map[string]any
	inProgress, err := d.host.GetOption(ctx, migration.StateOption, &progress)
	if err != nil {
		return err
	}

	switch {
	case inProgress:
		report.AddCheck(CheckResult{
			Category: "Migration",
			Name:     "state",
			Status:   StatusWarn,
			Message:  "A legacy migration run is unfinished",
			Details:  fmt.Sprintf("run %v, %v items per step", progress["run_id"], progress["items_per_step"]),
			FixHint:  "Resume it with 'm2m migrate step' or start over with 'm2m migrate'",
		})
	case enabled:
		report.AddCheck(CheckResult{
			Category: "Migration",
			Name:     "state",
			Status:   StatusPass,
			Message:  "Relationships are stored in the m2m tables",
		})
	case hasLegacy && len(legacy) > 0:
		report.AddCheck(CheckResult{
			Category: "Migration",
			Name:     "state",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d legacy parent types have not been migrated", len(legacy)),
			FixHint:  "Run 'm2m migrate'",
		})
	default:
		report.AddCheck(CheckResult{
			Category: "Migration",
			Name:     "state",
			Status:   StatusPass,
			Message:  "No legacy relationships to migrate",
		})
	}
	return nil
}

func (d *Doctor) checkCardinality(ctx context.Context, report *Report) error {
	defs, err := definition.NewRepository(d.ops, d.db).All(ctx)
	if err != nil {
		return err
	}

	if len(defs) == 0 {
		report.AddCheck(CheckResult{
			Category: "Cardinality",
			Name:     "relationships",
			Status:   StatusPass,
			Message:  "No relationships defined",
		})
		return nil
	}

	var violations []string
	for _, def := range defs {
		for _, role := range []m2m.Role{m2m.RoleParent, m2m.RoleChild} {
			c := def.Role(role).Cardinality
			if c.Unbounded() {
				continue
			}
			n, err := d.ops.CountMaxAssociations(ctx, def.ID, role)
			if err != nil {
				return err
			}
			if n > c.Max {
				violations = append(violations,
					fmt.Sprintf("%s: a %s element has %d associations, at most %d allowed", def.Slug, role, n, c.Max))
			}
		}
	}

	if len(violations) > 0 {
		report.AddCheck(CheckResult{
			Category: "Cardinality",
			Name:     "relationships",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%d cardinality violations in %d relationships", len(violations), len(defs)),
			Details:  strings.Join(violations, "\n"),
			FixHint:  "Delete the extra associations or raise the relationship's cardinality",
		})
		return nil
	}

	report.AddCheck(CheckResult{
		Category: "Cardinality",
		Name:     "relationships",
		Status:   StatusPass,
		Message:  fmt.Sprintf("%d relationships respect their cardinality", len(defs)),
	})
	return nil
}

func (d *Doctor) checkDangling(ctx context.Context, report *Report) error {
	c := cleanup.New(d.db, d.catalog, d.host, cleanup.WithLocalization(d.localization))
	n, err := c.DanglingCount(ctx)
	if err != nil {
		return err
	}

	notices, err := d.host.Notices(ctx)
	if err != nil {
		return err
	}
	_, noticeShown := notices[cleanup.NoticeID]

	switch {
	case n > 0:
		check := CheckResult{
			Category: "Intermediary Posts",
			Name:     "dangling",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d dangling intermediary posts", n),
			FixHint:  "Run 'm2m cleanup'",
		}
		if noticeShown {
			check.Details = "The cleanup notice is shown"
		}
		report.AddCheck(check)
	case noticeShown:
		report.AddCheck(CheckResult{
			Category: "Intermediary Posts",
			Name:     "dangling",
			Status:   StatusWarn,
			Message:  "The cleanup notice is shown but no dangling intermediary posts are left",
			FixHint:  "Run 'm2m cleanup' to dismiss it",
		})
	default:
		report.AddCheck(CheckResult{
			Category: "Intermediary Posts",
			Name:     "dangling",
			Status:   StatusPass,
			Message:  "No dangling intermediary posts",
		})
	}
	return nil
}
