package association_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/testutil"
	"github.com/pthm/m2m/pkg/association"
	"github.com/pthm/m2m/pkg/dbops"
	"github.com/pthm/m2m/pkg/definition"
	"github.com/pthm/m2m/pkg/host/pghost"
	"github.com/pthm/m2m/pkg/schema"
)

type fixture struct {
	driver *association.Driver
	ops    *dbops.Operations
	fx     *testutil.Fixtures
	def    *m2m.Definition
}

func setup(t *testing.T, mutate func(*m2m.Definition)) fixture {
	t.Helper()
	db := testutil.DB(t)
	catalog := schema.DefaultCatalog()
	ops := dbops.New(db, catalog)

	def := &m2m.Definition{
		Slug:       "book_review",
		Parent:     m2m.RoleDefinition{Domain: m2m.DomainPosts, Types: []string{"book"}, Cardinality: m2m.Cardinality{Min: 0, Max: m2m.Infinite}},
		Child:      m2m.RoleDefinition{Domain: m2m.DomainPosts, Types: []string{"review"}, Cardinality: m2m.Cardinality{Min: 0, Max: 1}},
		IsDistinct: true,
		Origin:     m2m.OriginWizard,
		IsActive:   true,
	}
	if mutate != nil {
		mutate(def)
	}
	require.NoError(t, definition.NewRepository(ops, db).Persist(context.Background(), def))

	return fixture{
		driver: association.NewDriver(db, ops, pghost.New(db, catalog)),
		ops:    ops,
		fx:     testutil.NewFixtures(t, db),
		def:    def,
	}
}

func TestCreate(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	book := f.fx.Post("book", "Dune")
	review := f.fx.Post("review", "Great")

	a, res := f.driver.Create(ctx, f.def, association.Request{ParentID: book, ChildID: review})
	require.True(t, res.Success, res.Message)
	assert.NotZero(t, a.ID)

	got, err := f.ops.GetAssociation(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestCreate_RejectsDuplicate(t *testing.T) {
	f := setup(t, func(d *m2m.Definition) { d.Child.Cardinality.Max = m2m.Infinite })
	ctx := context.Background()
	book := f.fx.Post("book", "Dune")
	review := f.fx.Post("review", "Great")

	_, res := f.driver.Create(ctx, f.def, association.Request{ParentID: book, ChildID: review})
	require.True(t, res.Success, res.Message)

	_, res = f.driver.Create(ctx, f.def, association.Request{ParentID: book, ChildID: review})
	assert.False(t, res.Success)
	assert.True(t, m2m.IsAlreadyAssociatedErr(res.Err))
	assert.Equal(t, 1, f.fx.CountAssociations())
}

func TestCreate_EnforcesCardinality(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	books := f.fx.Posts("book", 2)
	review := f.fx.Post("review", "Great")

	_, res := f.driver.Create(ctx, f.def, association.Request{ParentID: books[0], ChildID: review})
	require.True(t, res.Success, res.Message)

	_, res = f.driver.Create(ctx, f.def, association.Request{ParentID: books[1], ChildID: review})
	assert.False(t, res.Success)
	assert.True(t, m2m.IsCardinalityExceededErr(res.Err))

	n, err := f.ops.CountMaxAssociations(ctx, f.def.ID, m2m.RoleChild)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreate_ConcurrentWritersRespectCardinality(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	books := f.fx.Posts("book", 8)
	review := f.fx.Post("review", "Great")

	var wg sync.WaitGroup
	results := make([]m2m.Result, len(books))
	for i, book := range books {
		wg.Add(1)
		go func(i int, book int64) {
			defer wg.Done()
			_, results[i] = f.driver.Create(ctx, f.def, association.Request{ParentID: book, ChildID: review})
		}(i, book)
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			assert.True(t, m2m.IsCardinalityExceededErr(r.Err), r.Message)
		}
	}
	assert.Equal(t, 1, succeeded)

	n, err := f.ops.CountMaxAssociations(ctx, f.def.ID, m2m.RoleChild)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreate_RejectsWrongTypeAndMissingPosts(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	book := f.fx.Post("book", "Dune")
	note := f.fx.Post("note", "Scribble")

	_, res := f.driver.Create(ctx, f.def, association.Request{ParentID: book, ChildID: note})
	assert.True(t, m2m.IsTypeMismatchErr(res.Err), res.Message)

	_, res = f.driver.Create(ctx, f.def, association.Request{ParentID: book, ChildID: 999999})
	assert.True(t, m2m.IsElementNotFoundErr(res.Err), res.Message)

	_, res = f.driver.Create(ctx, f.def, association.Request{ParentID: -1, ChildID: note})
	assert.True(t, m2m.IsInvalidArgumentErr(res.Err), res.Message)

	assert.Zero(t, f.fx.CountAssociations())
}

func TestCreate_Intermediary(t *testing.T) {
	f := setup(t, func(d *m2m.Definition) { d.IntermediaryType = "review_meta" })
	ctx := context.Background()
	books := f.fx.Posts("book", 2)
	review := f.fx.Post("review", "Great")

	a, res := f.driver.Create(ctx, f.def, association.Request{ParentID: books[0], ChildID: review, CreateIntermediary: true})
	require.True(t, res.Success, res.Message)
	require.True(t, a.HasIntermediary())
	assert.Equal(t, 1, f.fx.CountPosts("review_meta"))

	// a rejected association leaves no intermediary behind
	_, res = f.driver.Create(ctx, f.def, association.Request{ParentID: books[1], ChildID: review, CreateIntermediary: true})
	require.False(t, res.Success)
	assert.Equal(t, 1, f.fx.CountPosts("review_meta"))

	res = f.driver.Delete(ctx, a)
	require.True(t, res.Success, res.Message)
	assert.False(t, f.fx.PostExists(a.IntermediaryID))
	assert.Zero(t, f.fx.CountAssociations())
}
