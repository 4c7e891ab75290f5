package query_test

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/testutil"
	"github.com/pthm/m2m/pkg/dbops"
	"github.com/pthm/m2m/pkg/definition"
	"github.com/pthm/m2m/pkg/host/pghost"
	"github.com/pthm/m2m/pkg/query"
	"github.com/pthm/m2m/pkg/schema"
)

type env struct {
	db   *sqlx.DB
	ops  *dbops.Operations
	repo *definition.Repository
	fx   *testutil.Fixtures
}

func setup(t *testing.T) env {
	t.Helper()
	db := testutil.DB(t)
	ops := dbops.New(db, schema.DefaultCatalog())
	return env{db: db, ops: ops, repo: definition.NewRepository(ops, db), fx: testutil.NewFixtures(t, db)}
}

func (e env) define(t *testing.T, slug, parentType, childType string, mutate func(*m2m.Definition)) *m2m.Definition {
	t.Helper()
	d := &m2m.Definition{
		Slug:     slug,
		Parent:   m2m.RoleDefinition{Domain: m2m.DomainPosts, Types: []string{parentType}, Cardinality: m2m.Cardinality{Min: 0, Max: m2m.Infinite}},
		Child:    m2m.RoleDefinition{Domain: m2m.DomainPosts, Types: []string{childType}, Cardinality: m2m.Cardinality{Min: 0, Max: m2m.Infinite}},
		Origin:   m2m.OriginWizard,
		IsActive: true,
	}
	if mutate != nil {
		mutate(d)
	}
	require.NoError(t, e.repo.Persist(context.Background(), d))
	return d
}

func (e env) associate(t *testing.T, relID, parent, child int64) int64 {
	t.Helper()
	id, err := e.ops.InsertAssociation(context.Background(), m2m.Association{RelationshipID: relID, ParentID: parent, ChildID: child})
	require.NoError(t, err)
	return id
}

func TestAssociationQuery_Results(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	rel := e.define(t, "book_review", "book", "review", nil)
	books := e.fx.Posts("book", 2)
	reviews := e.fx.Posts("review", 3)
	a1 := e.associate(t, rel.ID, books[0], reviews[0])
	a2 := e.associate(t, rel.ID, books[0], reviews[1])
	e.associate(t, rel.ID, books[1], reviews[2])

	q, err := query.NewEngine(e.db, schema.DefaultCatalog()).Associations().
		Add(query.Must(query.RelationshipSlug("book_review"))).
		Add(query.Must(query.ElementID(m2m.RoleParent, books[0]))).
		Finalize(ctx)
	require.NoError(t, err)

	got, err := q.Results(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, m2m.Association{ID: a1, RelationshipID: rel.ID, ParentID: books[0], ChildID: reviews[0]}, got[0])
	assert.Equal(t, a2, got[1].ID)

	_, err = q.Results(ctx)
	assert.True(t, m2m.IsQueryConsumedErr(err))
}

func TestAssociationQuery_FoundRows(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	rel := e.define(t, "book_review", "book", "review", nil)
	book := e.fx.Post("book", "Dune")
	for _, r := range e.fx.Posts("review", 5) {
		e.associate(t, rel.ID, book, r)
	}

	q, err := query.NewEngine(e.db, schema.DefaultCatalog()).Associations().
		Add(query.Must(query.ElementID(m2m.RoleParent, book))).
		NeedFoundRows().
		Limit(2).
		Offset(1).
		Finalize(ctx)
	require.NoError(t, err)

	got, err := q.Results(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	n, err := q.FoundRows()
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestAssociationQuery_DefaultConditions(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	h := pghost.New(e.db, schema.DefaultCatalog())

	active := e.define(t, "book_review", "book", "review", nil)
	inactive := e.define(t, "book_note", "book", "note", func(d *m2m.Definition) { d.IsActive = false })
	migrated := e.define(t, "book_chapter", "book", "chapter", func(d *m2m.Definition) { d.Origin = m2m.OriginMigration })
	disabled := e.define(t, "book_draft", "book", "archive", nil)

	e.fx.Option(pghost.CustomTypesOption, map[string]any{
		"book":    map[string]any{"slug": "book"},
		"review":  map[string]any{"slug": "review"},
		"note":    map[string]any{"slug": "note"},
		"chapter": map[string]any{"slug": "chapter"},
		"archive": map[string]any{"slug": "archive", "disabled": true},
	})

	book := e.fx.Post("book", "Dune")
	for _, rel := range []*m2m.Definition{active, inactive, migrated, disabled} {
		e.associate(t, rel.ID, book, e.fx.Post(rel.Child.Types[0], ""))
	}

	engine := query.NewEngine(e.db, schema.DefaultCatalog(), query.WithPostTypes(h))

	q, err := engine.Associations().Finalize(ctx)
	require.NoError(t, err)
	got, err := q.Results(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].RelationshipID)

	q, err = engine.Associations().DoNotAddDefaultConditions().Finalize(ctx)
	require.NoError(t, err)
	got, err = q.Results(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	q, err = engine.Associations().Add(query.Must(query.Origin(m2m.OriginMigration))).Finalize(ctx)
	require.NoError(t, err)
	got, err = q.Results(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, migrated.ID, got[0].RelationshipID)
}

func TestAssociationQuery_ElementConditions(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	rel := e.define(t, "book_review", "book", "review", nil)
	book := e.fx.Post("book", "Dune")
	good := e.fx.PostWith("review", "publish", "A 100% classic", "")
	draft := e.fx.PostWith("review", "draft", "Unfinished", "")
	e.fx.Meta(good, "rating", "5")
	e.fx.Meta(draft, "rating", "2")
	e.associate(t, rel.ID, book, good)
	e.associate(t, rel.ID, book, draft)

	engine := query.NewEngine(e.db, schema.DefaultCatalog())
	children := func(c query.Condition) []int64 {
		t.Helper()
		q, err := engine.Associations().Add(c).DoNotAddDefaultConditions().Finalize(ctx)
		require.NoError(t, err)
		got, err := q.Results(ctx)
		require.NoError(t, err)
		ids := make([]int64, len(got))
		for i, a := range got {
			ids[i] = a.ChildID
		}
		return ids
	}

	assert.Equal(t, []int64{good}, children(query.Must(query.Search(m2m.RoleChild, "100%"))))
	assert.Empty(t, children(query.Must(query.Search(m2m.RoleChild, "100_"))))
	assert.Equal(t, []int64{draft}, children(query.Must(query.PostStatus(m2m.RoleChild, "draft"))))
	assert.Equal(t, []int64{good}, children(query.Must(query.Meta(m2m.RoleChild, "rating", query.OpGreater, "3"))))
	assert.Equal(t, []int64{draft}, children(query.Must(query.NotElementID(m2m.RoleChild, good))))
	assert.Equal(t, []int64{good, draft}, children(query.Must(query.HasType(m2m.RoleChild, "review"))))
	assert.Empty(t, children(query.Must(query.HasType(m2m.RoleChild, "book"))))
	assert.Equal(t, []int64{good, draft}, children(query.HasIntermediary(false)))
}

func TestAssociationQuery_TranslatedElements(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	h := pghost.New(e.db, schema.DefaultCatalog())

	rel := e.define(t, "book_review", "book", "review", nil)
	en := e.fx.Post("book", "Dune")
	de := e.fx.Post("book", "Der Wüstenplanet")
	e.fx.Translation(en, "book", 1, "en", "")
	e.fx.Translation(de, "book", 1, "de", "en")
	review := e.fx.Post("review", "Great")
	e.associate(t, rel.ID, en, review)

	loc := pghost.NewLocalization(h, pghost.LanguageConfig{Active: true, DefaultLanguage: "en", CurrentLanguage: "de"})
	engine := query.NewEngine(e.db, schema.DefaultCatalog(), query.WithLocalization(loc))

	q, err := engine.Associations().
		Add(query.Must(query.ElementID(m2m.RoleParent, de, query.Translated()))).
		TranslateElements(m2m.RoleChild).
		Finalize(ctx)
	require.NoError(t, err)

	got, err := q.Results(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, en, got[0].ParentID)
	assert.Equal(t, de, got[0].Translated.Parent)
	// untranslated elements fall back to the stored ID
	assert.Equal(t, review, got[0].Translated.Child)
}

func TestRelationshipQuery_Results(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	e.define(t, "book_review", "book", "review", nil)
	e.define(t, "author_book", "author", "book", func(d *m2m.Definition) { d.Child.Cardinality.Max = 1 })
	e.define(t, "user_book", "user", "book", func(d *m2m.Definition) {
		d.Parent = m2m.RoleDefinition{Domain: m2m.DomainUsers, Cardinality: m2m.Cardinality{Min: 0, Max: m2m.Infinite}}
		d.IsActive = false
	})

	engine := query.NewEngine(e.db, schema.DefaultCatalog())

	q, err := engine.Relationships().Add(query.Must(query.HasType(m2m.RoleParent, "book"))).NeedFoundRows().Finalize(ctx)
	require.NoError(t, err)
	defs, err := q.Results(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "book_review", defs[0].Slug)
	assert.Equal(t, []string{"review"}, defs[0].Child.Types)
	n, err := q.FoundRows()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	q, err = engine.Relationships().Add(query.Must(query.CardinalityTypeIs(m2m.OneToMany))).Finalize(ctx)
	require.NoError(t, err)
	defs, err = q.Results(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "author_book", defs[0].Slug)

	q, err = engine.Relationships().
		Add(query.Must(query.Domain(m2m.RoleParent, m2m.DomainUsers))).
		DoNotAddDefaultConditions().
		Finalize(ctx)
	require.NoError(t, err)
	defs, err = q.Results(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "user_book", defs[0].Slug)
	assert.Empty(t, defs[0].Parent.Types)
}
