// Package migrate applies versioned schema migrations exactly once each,
// tracked in a schema_migrations ledger. Migrations are run as a one-shot
// offline process, never concurrently with request traffic.
package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrIrreversible is returned when down is invoked on a migration whose
// reverse would destroy data. Recovery is manual by design.
var ErrIrreversible = errors.New("migrate: irreversible migration")

// Executor is the subset of pgx capabilities a migration body needs.
// Both pgx.Tx and *pgxpool.Pool satisfy it.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Migration is one versioned schema change. Down is nil when the reverse
// would be destructive; the runner then refuses to roll it back.
type Migration struct {
	ID   int
	Name string
	Up   func(ctx context.Context, exec Executor) error
	Down func(ctx context.Context, exec Executor) error
}

// Reversible reports whether the migration declares a reverse operation.
func (m Migration) Reversible() bool {
	return m.Down != nil
}

// validate checks the registry shape: strictly increasing ids, unique
// names, and an up body on every entry.
func validate(migrations []Migration) error {
	names := make(map[string]struct{}, len(migrations))
	lastID := 0
	for _, m := range migrations {
		if m.ID <= lastID {
			return fmt.Errorf("migrate: migration %q id %d is not strictly increasing", m.Name, m.ID)
		}
		lastID = m.ID
		if m.Name == "" {
			return fmt.Errorf("migrate: migration %d has no name", m.ID)
		}
		if _, dup := names[m.Name]; dup {
			return fmt.Errorf("migrate: duplicate migration name %q", m.Name)
		}
		names[m.Name] = struct{}{}
		if m.Up == nil {
			return fmt.Errorf("migrate: migration %q has no up body", m.Name)
		}
	}
	return nil
}

// pending returns the not-yet-applied migrations in declared order.
func pending(migrations []Migration, applied map[int]bool) []Migration {
	var out []Migration
	for _, m := range migrations {
		if !applied[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

// byID finds a migration in the registry.
func byID(migrations []Migration, id int) (Migration, bool) {
	for _, m := range migrations {
		if m.ID == id {
			return m, true
		}
	}
	return Migration{}, false
}

// execAll runs statements in order, stopping at the first failure.
func execAll(ctx context.Context, exec Executor, stmts []string) error {
	for _, s := range stmts {
		if _, err := exec.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
