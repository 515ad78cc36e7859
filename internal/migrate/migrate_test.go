package migrate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakeExec records statements instead of executing them.
type fakeExec struct {
	stmts   []string
	failOn  string
	failErr error
}

func (f *fakeExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, f.failErr
	}
	f.stmts = append(f.stmts, sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakeExec) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeExec) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func TestRegistryIsWellFormed(t *testing.T) {
	require.NoError(t, validate(All))
	require.NotEmpty(t, All)

	// The artist backfill is a data migration whose reverse would destroy
	// hand-corrected links; it must stay irreversible.
	last, ok := byID(All, 15)
	require.True(t, ok)
	require.False(t, last.Reversible())
}

func TestValidateRejectsBadRegistries(t *testing.T) {
	up := func(ctx context.Context, exec Executor) error { return nil }

	err := validate([]Migration{{ID: 2, Name: "b", Up: up}, {ID: 1, Name: "a", Up: up}})
	require.Error(t, err)

	err = validate([]Migration{{ID: 1, Name: "a", Up: up}, {ID: 2, Name: "a", Up: up}})
	require.Error(t, err)

	err = validate([]Migration{{ID: 1, Name: "a"}})
	require.Error(t, err)
}

func TestPendingPartitionsInDeclaredOrder(t *testing.T) {
	up := func(ctx context.Context, exec Executor) error { return nil }
	known := []Migration{
		{ID: 1, Name: "a", Up: up},
		{ID: 2, Name: "b", Up: up},
		{ID: 5, Name: "c", Up: up},
	}

	todo := pending(known, map[int]bool{1: true, 5: true})
	require.Len(t, todo, 1)
	require.Equal(t, 2, todo[0].ID)

	require.Empty(t, pending(known, map[int]bool{1: true, 2: true, 5: true}))
	require.Len(t, pending(known, nil), 3)
}

func TestShadowRebuildStepOrder(t *testing.T) {
	exec := &fakeExec{}
	err := ShadowRebuild(context.Background(), exec, RebuildPlan{
		Table:      "widgets",
		Definition: "id BIGINT PRIMARY KEY, label TEXT NOT NULL",
		Select:     "SELECT id, coalesce(name, '') FROM widgets",
		After:      []string{"CREATE INDEX idx_widgets_label ON widgets (label)"},
	})
	require.NoError(t, err)

	require.Equal(t, []string{
		"CREATE TABLE widgets_shadow (id BIGINT PRIMARY KEY, label TEXT NOT NULL)",
		"INSERT INTO widgets_shadow SELECT id, coalesce(name, '') FROM widgets",
		"DROP TABLE widgets",
		"ALTER TABLE widgets_shadow RENAME TO widgets",
		"CREATE INDEX idx_widgets_label ON widgets (label)",
	}, exec.stmts)
}

func TestShadowRebuildStopsOnFailure(t *testing.T) {
	boom := errors.New("disk full")
	exec := &fakeExec{failOn: "DROP TABLE", failErr: boom}
	err := ShadowRebuild(context.Background(), exec, RebuildPlan{
		Table:      "widgets",
		Definition: "id BIGINT",
		Select:     "SELECT id FROM widgets",
	})
	require.ErrorIs(t, err, boom)
	// Nothing after the failing step may run.
	require.Len(t, exec.stmts, 2)
}

func TestCartRebuildCollapsesDuplicates(t *testing.T) {
	// The retrofit migration must both rebuild the shape and recreate the
	// per-item uniqueness indexes on the renamed table.
	m, ok := byID(All, 12)
	require.True(t, ok)

	exec := &fakeExec{}
	require.NoError(t, m.Up(context.Background(), exec))

	joined := strings.Join(exec.stmts, "\n")
	require.Contains(t, joined, "GROUP BY person_id, product_id, song_id")
	require.Contains(t, joined, "uq_cart_person_product")
	require.Contains(t, joined, "uq_cart_person_song")
	require.Contains(t, joined, "ALTER TABLE cart_items_shadow RENAME TO cart_items")

	exec = &fakeExec{}
	require.NoError(t, m.Down(context.Background(), exec))
	require.Contains(t, strings.Join(exec.stmts, "\n"), "DROP TABLE cart_items")
}

func TestGenreConstraintComesFromCatalog(t *testing.T) {
	m, ok := byID(All, 5)
	require.True(t, ok)

	exec := &fakeExec{}
	require.NoError(t, m.Up(context.Background(), exec))
	require.Contains(t, exec.stmts[0], "'Hip-Hop'")
	require.Contains(t, exec.stmts[0], "genre IS NULL OR genre IN")
}

func TestCatalogDeletesDetachCommerceRows(t *testing.T) {
	// Cart rows are transient staging and vanish with the catalog row;
	// order_items keep their title/unit_price snapshot and drop the ref.
	cart, ok := byID(All, 8)
	require.True(t, ok)
	exec := &fakeExec{}
	require.NoError(t, cart.Up(context.Background(), exec))
	require.Contains(t, exec.stmts[0], "REFERENCES products(id) ON DELETE CASCADE")
	require.Contains(t, exec.stmts[0], "REFERENCES songs(id) ON DELETE CASCADE")

	rebuild, ok := byID(All, 12)
	require.True(t, ok)
	exec = &fakeExec{}
	require.NoError(t, rebuild.Up(context.Background(), exec))
	joined := strings.Join(exec.stmts, "\n")
	require.Contains(t, joined, "REFERENCES products(id) ON DELETE CASCADE")
	require.Contains(t, joined, "REFERENCES songs(id) ON DELETE CASCADE")

	orders, ok := byID(All, 9)
	require.True(t, ok)
	exec = &fakeExec{}
	require.NoError(t, orders.Up(context.Background(), exec))
	joined = strings.Join(exec.stmts, "\n")
	require.Contains(t, joined, "REFERENCES products(id) ON DELETE SET NULL")
	require.Contains(t, joined, "REFERENCES songs(id) ON DELETE SET NULL")
	// A detached snapshot line may end up with neither ref set.
	require.Contains(t, joined, "CHECK (product_id IS NULL OR song_id IS NULL)")
}
