package definition

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/pkg/schema"
)

type typeSetRow struct {
	SetID int64  `db:"set_id"`
	Type  string `db:"type"`
}

// LoadTypeSets returns the members of each requested type set, keyed by set
// ID. Set ID 0 stands for "no restriction" and is never queried.
func LoadTypeSets(ctx context.Context, q m2m.Querier, catalog schema.Catalog, setIDs []int64) (map[int64][]string, error) {
	seen := make(map[int64]bool, len(setIDs))
	ids := make([]any, 0, len(setIDs))
	for _, id := range setIDs {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	sets := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return sets, nil
	}

	sb := flavor.NewSelectBuilder()
	sb.Select("set_id", "type")
	sb.From(catalog.TypeSets())
	sb.Where(sb.In("set_id", ids...))
	sb.OrderBy("id")

	query, args := sb.Build()

	var rows []typeSetRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("loading type sets: %w", err)
	}
	for _, r := range rows {
		sets[r.SetID] = append(sets[r.SetID], r.Type)
	}
	return sets, nil
}

// writeTypeSet stores types under a fresh set ID and returns it. An empty
// list is stored as set 0. q must be a transaction: the allocation lock is
// held until it ends.
func writeTypeSet(ctx context.Context, q m2m.Querier, catalog schema.Catalog, types []string) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}

	// Serializes set ID allocation until the surrounding transaction ends.
	lock, lockArgs := sqlbuilder.Buildf("SELECT pg_advisory_xact_lock(hashtext(%v))", catalog.TypeSets()).BuildWithFlavor(flavor)
	if _, err := q.ExecContext(ctx, lock, lockArgs...); err != nil {
		return 0, fmt.Errorf("locking type sets: %w", err)
	}

	sb := flavor.NewSelectBuilder()
	sb.Select("COALESCE(MAX(set_id), 0) + 1")
	sb.From(catalog.TypeSets())
	query, args := sb.Build()

	var setID int64
	if err := sqlx.GetContext(ctx, q, &setID, query, args...); err != nil {
		return 0, fmt.Errorf("allocating type set: %w", err)
	}

	ib := flavor.NewInsertBuilder()
	ib.InsertInto(catalog.TypeSets())
	ib.Cols("set_id", "type")
	for _, t := range types {
		ib.Values(setID, t)
	}
	query, args = ib.Build()

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("writing type set: %w", err)
	}
	return setID, nil
}

func deleteTypeSets(ctx context.Context, q m2m.Querier, catalog schema.Catalog, setIDs ...int64) error {
	ids := make([]any, 0, len(setIDs))
	for _, id := range setIDs {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	dlb := flavor.NewDeleteBuilder()
	dlb.DeleteFrom(catalog.TypeSets())
	dlb.Where(dlb.In("set_id", ids...))
	query, args := dlb.Build()

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting type sets: %w", err)
	}
	return nil
}

var flavor = sqlbuilder.PostgreSQL
