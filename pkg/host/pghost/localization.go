package pghost

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/dbx"
	"github.com/pthm/m2m/pkg/host"
)

// TranslationSettingsOption holds the per post type translation modes under
// the custom_posts_sync_option key.
const TranslationSettingsOption = "icl_sitepress_settings"

// LanguageConfig is the static part of the localization state.
type LanguageConfig struct {
	Active           bool
	DefaultLanguage  string
	CurrentLanguage  string
	ShowAllLanguages bool
}

// Localization implements host.Localization over the translation table.
type Localization struct {
	host *Host
	cfg  LanguageConfig
}

var _ host.Localization = (*Localization)(nil)

// NewLocalization returns the localization service of h.
func NewLocalization(h *Host, cfg LanguageConfig) *Localization {
	if cfg.CurrentLanguage == "" {
		cfg.CurrentLanguage = cfg.DefaultLanguage
	}
	return &Localization{host: h, cfg: cfg}
}

func (l *Localization) IsActive() bool              { return l.cfg.Active }
func (l *Localization) DefaultLanguage() string     { return l.cfg.DefaultLanguage }
func (l *Localization) CurrentLanguage() string     { return l.cfg.CurrentLanguage }
func (l *Localization) IsShowingAllLanguages() bool { return l.cfg.ShowAllLanguages }

type translationRow struct {
	ElementID int64  `db:"element_id"`
	Trid      int64  `db:"trid"`
	Language  string `db:"language_code"`
	Type      string `db:"element_type"`
}

func (l *Localization) translation(ctx context.Context, q m2m.Querier, postID int64) (*translationRow, error) {
	sb := flavor.NewSelectBuilder()
	sb.Select("element_id", "trid", "language_code", "element_type")
	sb.From(l.host.catalog.Translations())
	sb.Where(sb.Equal("element_id", postID), sb.Like("element_type", `post\_%`))

	query, args := sb.Build()

	var row translationRow
	err := sqlx.GetContext(ctx, q, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading translation of post %d: %w", postID, err)
	}
	return &row, nil
}

// PostLanguage returns the language of a post, or "" when it has none.
func (l *Localization) PostLanguage(ctx context.Context, postID int64) (string, error) {
	tr, err := l.translation(ctx, l.host.db, postID)
	if err != nil || tr == nil {
		return "", err
	}
	return tr.Language, nil
}

// DefaultLanguagePost returns the default language translation of a post.
// A post outside any translation group counts as its own default language
// version. It returns 0 when the group lacks a default language post.
func (l *Localization) DefaultLanguagePost(ctx context.Context, postID int64) (int64, error) {
	tr, err := l.translation(ctx, l.host.db, postID)
	if err != nil {
		return 0, err
	}
	if tr == nil || tr.Language == l.cfg.DefaultLanguage {
		return postID, nil
	}

	sb := flavor.NewSelectBuilder()
	sb.Select("element_id")
	sb.From(l.host.catalog.Translations())
	sb.Where(
		sb.Equal("trid", tr.Trid),
		sb.Equal("element_type", tr.Type),
		sb.Equal("language_code", l.cfg.DefaultLanguage),
	)

	query, args := sb.Build()

	var id int64
	err = sqlx.GetContext(ctx, l.host.db, &id, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading default language post of %d: %w", postID, err)
	}
	return id, nil
}

// CreateDefaultLanguagePost creates the default language translation of a
// post. Without copyContent the translation is an empty draft carrying the
// original title.
func (l *Localization) CreateDefaultLanguagePost(ctx context.Context, postID int64, copyContent bool) (int64, error) {
	src, err := l.host.GetPost(ctx, postID)
	if err != nil {
		return 0, err
	}

	var id int64
	err = dbx.InTx(ctx, l.host.db, func(q m2m.Querier) error {
		h := *l.host
		h.db = q

		tr, err := l.translation(ctx, q, postID)
		if err != nil {
			return err
		}
		if tr == nil {
			return fmt.Errorf("post %d is not part of a translation group", postID)
		}

		p := host.Post{Type: src.Type, Status: "draft", Title: src.Title}
		if copyContent {
			p.Status = src.Status
			p.Excerpt = src.Excerpt
			p.Content = src.Content
		}
		if id, err = h.CreatePost(ctx, p); err != nil {
			return err
		}

		ib := flavor.NewInsertBuilder()
		ib.InsertInto(l.host.catalog.Translations())
		ib.Cols("element_type", "element_id", "trid", "language_code")
		ib.Values(tr.Type, id, tr.Trid, l.cfg.DefaultLanguage)

		query, args := ib.Build()
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("linking translation of post %d: %w", postID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

type translationSettings struct {
	CustomPostsSync map[string]host.TranslationMode `json:"custom_posts_sync_option"`
}

// PostTypeTranslationMode returns the configured mode of postType.
func (l *Localization) PostTypeTranslationMode(ctx context.Context, postType string) (host.TranslationMode, error) {
	var s translationSettings
	if _, err := l.host.GetOption(ctx, TranslationSettingsOption, &s); err != nil {
		return host.NotTranslatable, err
	}
	return s.CustomPostsSync[postType], nil
}

// SetPostTypeTranslationMode stores mode for postType, keeping the other
// settings of the option intact.
func (l *Localization) SetPostTypeTranslationMode(ctx context.Context, postType string, mode host.TranslationMode) error {
	settings := map[string]any{}
	if _, err := l.host.GetOption(ctx, TranslationSettingsOption, &settings); err != nil {
		return err
	}

	sync := map[string]host.TranslationMode{}
	if raw, ok := settings["custom_posts_sync_option"].(map[string]any); ok {
		for k, v := range raw {
			if f, ok := v.(float64); ok {
				sync[k] = host.TranslationMode(f)
			}
		}
	}
	sync[postType] = mode
	settings["custom_posts_sync_option"] = sync

	return l.host.SetOption(ctx, TranslationSettingsOption, settings)
}
