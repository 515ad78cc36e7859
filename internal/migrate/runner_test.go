package migrate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type ledgerEntry struct {
	id   int
	name string
	at   time.Time
}

// fakeStore is an in-memory schema_migrations ledger speaking just enough
// SQL for the runner's query paths.
type fakeStore struct {
	entries []ledgerEntry
	applied []string
}

func (s *fakeStore) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	// Only the ledger DDL runs outside a transaction.
	return pgconn.CommandTag{}, nil
}

func (s *fakeStore) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows := &fakeRows{}
	for _, e := range s.entries {
		if strings.Contains(sql, "executed_at") {
			rows.data = append(rows.data, []any{e.id, e.at})
		} else {
			rows.data = append(rows.data, []any{e.id})
		}
	}
	return rows, nil
}

func (s *fakeStore) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if len(s.entries) == 0 {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{id: s.entries[len(s.entries)-1].id}
}

func (s *fakeStore) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	return &fakeTx{store: s}, nil
}

// fakeTx buffers writes and applies them on Commit, so a failed migration
// leaves no ledger row behind.
type fakeTx struct {
	pgx.Tx
	store   *fakeStore
	stmts   []string
	inserts []ledgerEntry
	deletes []int
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	switch {
	case strings.Contains(sql, "INSERT INTO schema_migrations"):
		t.inserts = append(t.inserts, ledgerEntry{id: args[0].(int), name: args[1].(string), at: time.Now()})
	case strings.Contains(sql, "DELETE FROM schema_migrations"):
		t.deletes = append(t.deletes, args[0].(int))
	default:
		t.stmts = append(t.stmts, sql)
	}
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.store.entries = append(t.store.entries, t.inserts...)
	for _, id := range t.deletes {
		kept := t.store.entries[:0]
		for _, e := range t.store.entries {
			if e.id != id {
				kept = append(kept, e)
			}
		}
		t.store.entries = kept
	}
	t.store.applied = append(t.store.applied, t.stmts...)
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeRows struct {
	pgx.Rows
	data [][]any
	idx  int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	*dest[0].(*int) = row[0].(int)
	if len(dest) > 1 {
		*dest[1].(*time.Time) = row[1].(time.Time)
	}
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     {}

type fakeRow struct {
	id  int
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int) = r.id
	return nil
}

func execStmt(sql string) func(context.Context, Executor) error {
	return func(ctx context.Context, exec Executor) error {
		_, err := exec.Exec(ctx, sql)
		return err
	}
}

func newTestRunner(t *testing.T, store *fakeStore, reg []Migration) *Runner {
	t.Helper()
	r, err := NewRunner(store, slog.New(slog.DiscardHandler), reg)
	require.NoError(t, err)
	return r
}

func TestUpTwiceIsNoOp(t *testing.T) {
	store := &fakeStore{}
	r := newTestRunner(t, store, []Migration{
		{ID: 1, Name: "one", Up: execStmt("CREATE TABLE a (id INT)"), Down: execStmt("DROP TABLE a")},
		{ID: 2, Name: "two", Up: execStmt("CREATE TABLE b (id INT)"), Down: execStmt("DROP TABLE b")},
	})
	ctx := context.Background()

	n, err := r.Up(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, store.entries, 2)
	require.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"}, store.applied)

	n, err = r.Up(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "nothing may run twice")
	require.Len(t, store.entries, 2)

	statuses, err := r.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		require.True(t, st.Applied)
		require.NotNil(t, st.ExecutedAt)
	}
}

func TestUpStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("column does not exist")
	store := &fakeStore{}
	r := newTestRunner(t, store, []Migration{
		{ID: 1, Name: "one", Up: execStmt("CREATE TABLE a (id INT)")},
		{ID: 2, Name: "two", Up: func(ctx context.Context, exec Executor) error { return boom }},
		{ID: 3, Name: "three", Up: execStmt("CREATE TABLE c (id INT)")},
	})
	ctx := context.Background()

	n, err := r.Up(ctx)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, n)
	// The failed migration is never marked executed, and nothing after it
	// runs.
	require.Len(t, store.entries, 1)
	require.Equal(t, 1, store.entries[0].id)
	require.NotContains(t, store.applied, "CREATE TABLE c (id INT)")

	statuses, err := r.Status(ctx)
	require.NoError(t, err)
	require.True(t, statuses[0].Applied)
	require.False(t, statuses[1].Applied)
	require.False(t, statuses[2].Applied)
}

func TestDownRevertsMostRecentOnly(t *testing.T) {
	store := &fakeStore{}
	r := newTestRunner(t, store, []Migration{
		{ID: 1, Name: "one", Up: execStmt("CREATE TABLE a (id INT)"), Down: execStmt("DROP TABLE a")},
		{ID: 2, Name: "two", Up: execStmt("CREATE TABLE b (id INT)"), Down: execStmt("DROP TABLE b")},
	})
	ctx := context.Background()

	_, err := r.Up(ctx)
	require.NoError(t, err)

	m, err := r.Down(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, m.ID)
	require.Len(t, store.entries, 1)
	require.Contains(t, store.applied, "DROP TABLE b")

	m, err = r.Down(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, m.ID)
	require.Empty(t, store.entries)

	m, err = r.Down(ctx)
	require.NoError(t, err)
	require.Nil(t, m, "empty ledger leaves nothing to revert")
}

func TestDownRefusesIrreversible(t *testing.T) {
	store := &fakeStore{}
	r := newTestRunner(t, store, []Migration{
		{ID: 1, Name: "one", Up: execStmt("CREATE TABLE a (id INT)"), Down: execStmt("DROP TABLE a")},
		{ID: 2, Name: "backfill", Up: execStmt("UPDATE a SET id = 1")},
	})
	ctx := context.Background()

	_, err := r.Up(ctx)
	require.NoError(t, err)

	_, err = r.Down(ctx)
	require.ErrorIs(t, err, ErrIrreversible)
	// The ledger is untouched; recovery is manual.
	require.Len(t, store.entries, 2)
}
