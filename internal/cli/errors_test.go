package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", cause, ExitGeneral},
		{"config", ConfigError("loading configuration", cause), ExitConfig},
		{"migration", MigrationError("migration failed", cause), ExitMigration},
		{"database", DBConnectError("connecting to database", cause), ExitDBConnect},
		{"incomplete", IncompleteError("health checks failed", nil), ExitIncomplete},
		{"wrapped", fmt.Errorf("migrate: %w", MigrationError("step failed", cause)), ExitMigration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	cause := errors.New("connection refused")
	err := DBConnectError("connecting to database", cause)

	assert.Equal(t, "connecting to database: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "health checks failed", IncompleteError("health checks failed", nil).Error())
}
