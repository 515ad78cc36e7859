package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/melodium-shop/melodium/internal/platform/db"
)

const ledgerDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	id BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	executed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Status describes one known migration's ledger state.
type Status struct {
	ID         int
	Name       string
	Applied    bool
	ExecutedAt *time.Time
}

// Store is the database surface the runner needs. *pgxpool.Pool
// satisfies it; tests substitute an in-memory ledger.
type Store interface {
	Executor
	db.Beginner
}

// Runner applies an ordered migration registry against a database,
// recording execution in the schema_migrations ledger.
type Runner struct {
	store      Store
	logger     *slog.Logger
	migrations []Migration
}

// NewRunner validates the registry and constructs a Runner.
func NewRunner(store Store, logger *slog.Logger, migrations []Migration) (*Runner, error) {
	if err := validate(migrations); err != nil {
		return nil, err
	}
	return &Runner{store: store, logger: logger, migrations: migrations}, nil
}

// Status reports executed vs pending for every known migration.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	executed, err := r.executedAt(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(r.migrations))
	for _, m := range r.migrations {
		st := Status{ID: m.ID, Name: m.Name}
		if at, ok := executed[m.ID]; ok {
			st.Applied = true
			at := at
			st.ExecutedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}

// Up applies every pending migration in declared order, stopping at the
// first failure. Each migration and its ledger row commit in one
// transaction, so a failed migration is never marked executed. Migrations
// already applied in a partially failed run remain applied.
func (r *Runner) Up(ctx context.Context) (int, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return 0, err
	}
	applied, err := r.appliedIDs(ctx)
	if err != nil {
		return 0, err
	}
	todo := pending(r.migrations, applied)
	if len(todo) == 0 {
		r.logger.Info("migrations up to date", slog.Int("known", len(r.migrations)))
		return 0, nil
	}
	done := 0
	for _, m := range todo {
		err := db.WithTx(ctx, r.store, func(tx pgx.Tx) error {
			if err := m.Up(ctx, tx); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (id, name) VALUES ($1, $2)`, m.ID, m.Name)
			return err
		})
		if err != nil {
			return done, fmt.Errorf("migrate: apply %d_%s: %w", m.ID, m.Name, err)
		}
		done++
		r.logger.Info("migration applied", slog.Int("id", m.ID), slog.String("name", m.Name))
	}
	return done, nil
}

// Down reverts the most recently executed migration by ledger order and
// removes its ledger row. Irreversible migrations fail loudly with a
// manual-recovery message instead of silently no-opping.
func (r *Runner) Down(ctx context.Context) (*Migration, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	var lastID int
	err := r.store.QueryRow(ctx, `SELECT id FROM schema_migrations ORDER BY id DESC LIMIT 1`).Scan(&lastID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m, ok := byID(r.migrations, lastID)
	if !ok {
		return nil, fmt.Errorf("migrate: ledger entry %d is unknown to this registry", lastID)
	}
	if !m.Reversible() {
		return nil, fmt.Errorf("%w: %d_%s cannot be rolled back automatically; restore from backup and repair the ledger by hand", ErrIrreversible, m.ID, m.Name)
	}
	err = db.WithTx(ctx, r.store, func(tx pgx.Tx) error {
		if err := m.Down(ctx, tx); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE id = $1`, m.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("migrate: revert %d_%s: %w", m.ID, m.Name, err)
	}
	r.logger.Info("migration reverted", slog.Int("id", m.ID), slog.String("name", m.Name))
	return &m, nil
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	_, err := r.store.Exec(ctx, ledgerDDL)
	if err != nil {
		return fmt.Errorf("migrate: ensure ledger: %w", err)
	}
	return nil
}

func (r *Runner) appliedIDs(ctx context.Context) (map[int]bool, error) {
	rows, err := r.store.Query(ctx, `SELECT id FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		applied[id] = true
	}
	return applied, rows.Err()
}

func (r *Runner) executedAt(ctx context.Context) (map[int]time.Time, error) {
	rows, err := r.store.Query(ctx, `SELECT id, executed_at FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	executed := make(map[int]time.Time)
	for rows.Next() {
		var id int
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, err
		}
		executed[id] = at
	}
	return executed, rows.Err()
}
