// Package pghost implements the host collaborators over the host's PostgreSQL
// tables: posts, postmeta, options and icl_translations.
package pghost

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/dbx"
	"github.com/pthm/m2m/pkg/host"
	"github.com/pthm/m2m/pkg/schema"
)

var flavor = sqlbuilder.PostgreSQL

// Option names read and written by the host implementation.
const (
	CustomTypesOption = "wpcf-custom-types"
	NoticesOption     = "toolset_m2m_notices"
)

// BuiltinPostTypes are always active.
var BuiltinPostTypes = []string{"post", "page", "attachment"}

// Host implements host.Elements, host.Options, host.PostTypes and
// host.Notices.
type Host struct {
	db      m2m.Querier
	catalog schema.Catalog
	logger  *zap.Logger
}

var (
	_ host.Elements  = (*Host)(nil)
	_ host.Options   = (*Host)(nil)
	_ host.PostTypes = (*Host)(nil)
	_ host.Notices   = (*Host)(nil)
)

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// New returns a Host reading the tables of catalog.
func New(db m2m.Querier, catalog schema.Catalog, opts ...Option) *Host {
	h := &Host{db: db, catalog: catalog, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GetPost loads a post.
func (h *Host) GetPost(ctx context.Context, id int64) (host.Post, error) {
	sb := flavor.NewSelectBuilder()
	sb.Select("id", "post_type", "post_status", "post_title", "post_excerpt", "post_content")
	sb.From(h.catalog.Posts())
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var p host.Post
	err := sqlx.GetContext(ctx, h.db, &p, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return host.Post{}, fmt.Errorf("post %d: %w", id, m2m.ErrElementNotFound)
	}
	if err != nil {
		return host.Post{}, fmt.Errorf("loading post %d: %w", id, err)
	}
	return p, nil
}

// CreatePost inserts p and returns its ID. p.ID is ignored.
func (h *Host) CreatePost(ctx context.Context, p host.Post) (int64, error) {
	if p.Status == "" {
		p.Status = "publish"
	}

	ib := flavor.NewInsertBuilder()
	ib.InsertInto(h.catalog.Posts())
	ib.Cols("post_type", "post_status", "post_title", "post_excerpt", "post_content")
	ib.Values(p.Type, p.Status, p.Title, p.Excerpt, p.Content)
	ib.SQL("RETURNING id")

	query, args := ib.Build()

	var id int64
	if err := sqlx.GetContext(ctx, h.db, &id, query, args...); err != nil {
		return 0, fmt.Errorf("creating %s post: %w", p.Type, err)
	}
	h.logger.Debug("created post", zap.Int64("post_id", id), zap.String("post_type", p.Type))
	return id, nil
}

// DeletePost removes a post together with its metadata and translation link.
func (h *Host) DeletePost(ctx context.Context, id int64) error {
	return dbx.InTx(ctx, h.db, func(q m2m.Querier) error {
		meta := flavor.NewDeleteBuilder()
		meta.DeleteFrom(h.catalog.Postmeta())
		meta.Where(meta.Equal("post_id", id))

		tr := flavor.NewDeleteBuilder()
		tr.DeleteFrom(h.catalog.Translations())
		tr.Where(tr.Equal("element_id", id), tr.Like("element_type", `post\_%`))

		post := flavor.NewDeleteBuilder()
		post.DeleteFrom(h.catalog.Posts())
		post.Where(post.Equal("id", id))

		for _, b := range []*sqlbuilder.DeleteBuilder{meta, tr, post} {
			query, args := b.Build()
			if _, err := q.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("deleting post %d: %w", id, err)
			}
		}
		h.logger.Debug("deleted post", zap.Int64("post_id", id))
		return nil
	})
}

// GetOption decodes the JSON value of the named option into dest.
func (h *Host) GetOption(ctx context.Context, name string, dest any) (bool, error) {
	sb := flavor.NewSelectBuilder()
	sb.Select("option_value")
	sb.From(h.catalog.Options())
	sb.Where(sb.Equal("option_name", name))

	query, args := sb.Build()

	var raw string
	err := sqlx.GetContext(ctx, h.db, &raw, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading option %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return true, fmt.Errorf("decoding option %s: %w", name, err)
	}
	return true, nil
}

// SetOption stores value as JSON, replacing any previous value.
func (h *Host) SetOption(ctx context.Context, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding option %s: %w", name, err)
	}

	ib := flavor.NewInsertBuilder()
	ib.InsertInto(h.catalog.Options())
	ib.Cols("option_name", "option_value")
	ib.Values(name, string(raw))
	ib.SQL("ON CONFLICT (option_name) DO UPDATE SET option_value = EXCLUDED.option_value")

	query, args := ib.Build()

	if _, err := h.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing option %s: %w", name, err)
	}
	return nil
}

// DeleteOption removes the named option. A missing option is not an error.
func (h *Host) DeleteOption(ctx context.Context, name string) error {
	dlb := flavor.NewDeleteBuilder()
	dlb.DeleteFrom(h.catalog.Options())
	dlb.Where(dlb.Equal("option_name", name))

	query, args := dlb.Build()

	if _, err := h.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting option %s: %w", name, err)
	}
	return nil
}

type customType struct {
	Slug     string `json:"slug"`
	Disabled bool   `json:"disabled"`
}

// ActivePostTypes returns the built-in post types plus every custom post
// type that is not disabled, sorted.
func (h *Host) ActivePostTypes(ctx context.Context) ([]string, error) {
	custom := map[string]customType{}
	if _, err := h.GetOption(ctx, CustomTypesOption, &custom); err != nil {
		return nil, err
	}

	types := append([]string(nil), BuiltinPostTypes...)
	for slug, ct := range custom {
		if !ct.Disabled {
			types = append(types, slug)
		}
	}
	sort.Strings(types)
	return types, nil
}

// Show records a notice under id, replacing an existing one.
func (h *Host) Show(ctx context.Context, id, message string) error {
	notices, err := h.notices(ctx)
	if err != nil {
		return err
	}
	notices[id] = message
	return h.SetOption(ctx, NoticesOption, notices)
}

// Dismiss removes the notice id.
func (h *Host) Dismiss(ctx context.Context, id string) error {
	notices, err := h.notices(ctx)
	if err != nil {
		return err
	}
	if _, ok := notices[id]; !ok {
		return nil
	}
	delete(notices, id)
	return h.SetOption(ctx, NoticesOption, notices)
}

// Notices returns the pending notices keyed by ID.
func (h *Host) Notices(ctx context.Context) (map[string]string, error) {
	return h.notices(ctx)
}

func (h *Host) notices(ctx context.Context) (map[string]string, error) {
	notices := map[string]string{}
	if _, err := h.GetOption(ctx, NoticesOption, &notices); err != nil {
		return nil, err
	}
	if notices == nil {
		notices = map[string]string{}
	}
	return notices, nil
}
