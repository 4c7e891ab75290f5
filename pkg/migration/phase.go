package migration

import (
	"github.com/pthm/m2m"
)

// Phase is a stage of the migration. Phases run strictly in order.
type Phase int

const (
	PhaseDBDelta Phase = iota
	PhaseDefinitionMigration
	PhaseAssociationMigration
	PhaseFinish
)

var phaseNames = map[Phase]string{
	PhaseDBDelta:              "dbdelta",
	PhaseDefinitionMigration:  "definition_migration",
	PhaseAssociationMigration: "association_migration",
	PhaseFinish:               "finish",
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, m2m.Invalidf("unknown phase %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return m2m.Invalidf("unknown phase %q", text)
}

// dbdelta steps
const (
	stepMaintenance  = 0
	stepDropTables   = 1
	stepCreateTables = 2
)

// MissingTranslationPolicy decides what happens to a legacy association
// whose element has no default language version.
type MissingTranslationPolicy string

const (
	// SkipMissingTranslations reports the row and moves on.
	SkipMissingTranslations MissingTranslationPolicy = "skip"
	// CreateMissingTranslations creates the default language post first.
	CreateMissingTranslations MissingTranslationPolicy = "create"
)

// Valid reports whether p is a known policy. The empty policy means skip.
func (p MissingTranslationPolicy) Valid() bool {
	switch p {
	case "", SkipMissingTranslations, CreateMissingTranslations:
		return true
	}
	return false
}

// Options are the caller's choices for one migration run. They are sent with
// every step.
type Options struct {
	UseMaintenanceMode             bool                     `json:"use_maintenance_mode"`
	AdjustTranslationMode          bool                     `json:"adjust_translation_mode"`
	PostsWithoutDefaultTranslation MissingTranslationPolicy `json:"posts_without_default_translation"`
	CopyContentWhenCreatingPosts   bool                     `json:"copy_content_when_creating_posts"`
	// ResetTables drops the relationship tables before creating them.
	ResetTables bool `json:"reset_tables"`
}

// StepRequest is one call of the batch step protocol. Step numbers are global
// across phases; FirstPhaseStep is the step at which the current phase began.
type StepRequest struct {
	Phase          Phase   `json:"phase"`
	Step           int     `json:"step"`
	FirstPhaseStep int     `json:"first_phase_step"`
	ItemsPerStep   int     `json:"items_per_step"`
	Options        Options `json:"options"`
}

// StepResponse tells the caller whether and how to issue the next step.
type StepResponse struct {
	Continue       bool       `json:"continue"`
	Phase          Phase      `json:"phase"`
	Step           int        `json:"step"`
	FirstPhaseStep int        `json:"first_phase_step"`
	ItemsPerStep   int        `json:"items_per_step"`
	Status         m2m.Status `json:"status"`
	Message        string     `json:"message"`
	RunID          string     `json:"run_id,omitempty"`
	// Processed counts the legacy rows read by an association step.
	Processed int `json:"processed"`
}

// Next builds the request for the step the response asks for.
func (r StepResponse) Next(opts Options) StepRequest {
	return StepRequest{
		Phase:          r.Phase,
		Step:           r.Step,
		FirstPhaseStep: r.FirstPhaseStep,
		ItemsPerStep:   r.ItemsPerStep,
		Options:        opts,
	}
}
