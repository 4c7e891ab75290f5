package definition_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/testutil"
	"github.com/pthm/m2m/pkg/dbops"
	"github.com/pthm/m2m/pkg/definition"
	"github.com/pthm/m2m/pkg/schema"
)

func bookReview() *m2m.Definition {
	return &m2m.Definition{
		Slug:                "book_review",
		DisplayNamePlural:   "Book Reviews",
		DisplayNameSingular: "Book Review",
		Driver:              "toolset",
		Parent: m2m.RoleDefinition{
			Domain:      m2m.DomainPosts,
			Types:       []string{"book"},
			Cardinality: m2m.Cardinality{Min: 0, Max: m2m.Infinite},
		},
		Child: m2m.RoleDefinition{
			Domain:      m2m.DomainPosts,
			Types:       []string{"review", "rating"},
			Cardinality: m2m.Cardinality{Min: 0, Max: 1},
		},
		Ownership:          m2m.OwnershipNone,
		IsDistinct:         true,
		Origin:             m2m.OriginMigration,
		NeedsLegacySupport: true,
		IsActive:           true,
	}
}

func newRepo(t *testing.T) (*definition.Repository, *dbops.Operations) {
	t.Helper()
	db := testutil.DB(t)
	ops := dbops.New(db, schema.DefaultCatalog())
	return definition.NewRepository(ops, db), ops
}

func TestPersistAndGet(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	d := bookReview()
	require.NoError(t, repo.Persist(ctx, d))
	assert.NotZero(t, d.ID)
	assert.NotZero(t, d.Parent.TypeSetID)
	assert.NotEqual(t, d.Parent.TypeSetID, d.Child.TypeSetID)

	got, err := repo.GetBySlug(ctx, "book_review")
	require.NoError(t, err)
	assert.Equal(t, *d, got)

	byID, err := repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, got, byID)

	_, err = repo.GetBySlug(ctx, "missing")
	assert.True(t, m2m.IsDefinitionNotFoundErr(err))
}

func TestPersist_OverwritesSameSlug(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	first := bookReview()
	require.NoError(t, repo.Persist(ctx, first))

	second := bookReview()
	second.DisplayNamePlural = "Reviews of books"
	second.Child.Types = []string{"review"}
	require.NoError(t, repo.Persist(ctx, second))

	assert.Equal(t, first.ID, second.ID)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Reviews of books", all[0].DisplayNamePlural)
	assert.Equal(t, []string{"review"}, all[0].Child.Types)
}

func TestPersist_RejectsInvalid(t *testing.T) {
	repo, _ := newRepo(t)

	d := bookReview()
	d.Slug = strings.Repeat("s", m2m.MaxSlugLength+1)
	err := repo.Persist(context.Background(), d)
	assert.True(t, m2m.IsInvalidArgumentErr(err))
}

func TestPersist_ConcurrentTypeSets(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	const n = 8
	defs := make([]*m2m.Definition, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		defs[i] = bookReview()
		defs[i].Slug = fmt.Sprintf("book_review_%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = repo.Persist(ctx, defs[i])
		}()
	}
	wg.Wait()

	seen := map[int64]string{}
	for i, d := range defs {
		require.NoError(t, errs[i])
		for _, id := range []int64{d.Parent.TypeSetID, d.Child.TypeSetID} {
			prev, dup := seen[id]
			assert.False(t, dup, "type set %d shared by %s and %s", id, prev, d.Slug)
			seen[id] = d.Slug
		}
	}

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, n)
	for _, d := range all {
		assert.Equal(t, []string{"book"}, d.Parent.Types)
		assert.Equal(t, []string{"review", "rating"}, d.Child.Types)
	}
}

func TestDelete_CascadesAssociations(t *testing.T) {
	repo, ops := newRepo(t)
	ctx := context.Background()

	d := bookReview()
	require.NoError(t, repo.Persist(ctx, d))

	for i := int64(1); i <= 4; i++ {
		_, err := ops.InsertAssociation(ctx, m2m.Association{RelationshipID: d.ID, ParentID: 1, ChildID: i + 1})
		require.NoError(t, err)
	}
	before, err := ops.CountAssociations(ctx, d.ID)
	require.NoError(t, err)

	res := repo.Delete(ctx, "book_review")
	require.True(t, res.Success, res.Message)

	after, err := ops.CountAssociations(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after+res.Affected)
	assert.Zero(t, after)

	_, err = repo.GetBySlug(ctx, "book_review")
	assert.True(t, m2m.IsDefinitionNotFoundErr(err))

	res = repo.Delete(ctx, "book_review")
	assert.False(t, res.Success)
	assert.True(t, m2m.IsDefinitionNotFoundErr(res.Err))
}

func TestChangeSlug(t *testing.T) {
	repo, ops := newRepo(t)
	ctx := context.Background()

	d := bookReview()
	require.NoError(t, repo.Persist(ctx, d))
	_, err := ops.InsertAssociation(ctx, m2m.Association{RelationshipID: d.ID, ParentID: 1, ChildID: 2})
	require.NoError(t, err)

	other := bookReview()
	other.Slug = "taken"
	require.NoError(t, repo.Persist(ctx, other))

	_, err = repo.ChangeSlug(ctx, "book_review", "taken")
	assert.ErrorIs(t, err, m2m.ErrSlugTaken)

	renamed, err := repo.ChangeSlug(ctx, "book_review", "book_critique")
	require.NoError(t, err)
	assert.Equal(t, "book_critique", renamed.Slug)
	assert.NotEqual(t, d.ID, renamed.ID)
	assert.Equal(t, []string{"review", "rating"}, renamed.Child.Types)

	n, err := ops.CountAssociations(ctx, renamed.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = ops.CountAssociations(ctx, d.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = repo.GetBySlug(ctx, "book_review")
	assert.True(t, m2m.IsDefinitionNotFoundErr(err))
}
