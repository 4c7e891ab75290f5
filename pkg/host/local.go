package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// NoLocalization is the Localization of a host without translation support.
type NoLocalization struct{}

var _ Localization = NoLocalization{}

func (NoLocalization) IsActive() bool              { return false }
func (NoLocalization) DefaultLanguage() string     { return "" }
func (NoLocalization) CurrentLanguage() string     { return "" }
func (NoLocalization) IsShowingAllLanguages() bool { return false }

func (NoLocalization) PostLanguage(context.Context, int64) (string, error) { return "", nil }

// DefaultLanguagePost returns postID: every post is in the default language.
func (NoLocalization) DefaultLanguagePost(_ context.Context, postID int64) (int64, error) {
	return postID, nil
}

func (NoLocalization) CreateDefaultLanguagePost(_ context.Context, postID int64, _ bool) (int64, error) {
	return postID, nil
}

func (NoLocalization) PostTypeTranslationMode(context.Context, string) (TranslationMode, error) {
	return NotTranslatable, nil
}

func (NoLocalization) SetPostTypeTranslationMode(context.Context, string, TranslationMode) error {
	return nil
}

// FileMaintenance enables maintenance mode by writing a marker file, the way
// the host checks for it on every request.
type FileMaintenance struct {
	Path string
	now  func() time.Time
}

var _ Maintenance = (*FileMaintenance)(nil)

// NewFileMaintenance returns a FileMaintenance writing path.
func NewFileMaintenance(path string) *FileMaintenance {
	return &FileMaintenance{Path: path, now: time.Now}
}

// Enable writes the marker file with the current Unix time.
func (m *FileMaintenance) Enable(context.Context) error {
	content := fmt.Sprintf("<?php $upgrading = %d; ?>", m.now().Unix())
	if err := os.WriteFile(m.Path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("enabling maintenance mode: %w", err)
	}
	return nil
}

// Disable removes the marker file. A missing file is not an error.
func (m *FileMaintenance) Disable(context.Context) error {
	if err := os.Remove(m.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("disabling maintenance mode: %w", err)
	}
	return nil
}

// IsEnabled reports whether the marker file exists.
func (m *FileMaintenance) IsEnabled(context.Context) (bool, error) {
	_, err := os.Stat(m.Path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	}
	return false, err
}
