package migrate

import (
	"context"
	"fmt"
)

// RebuildPlan describes a shadow-table rebuild: the replacement shape and
// the query that copies existing rows into it.
type RebuildPlan struct {
	// Table is the table being reshaped.
	Table string
	// Definition is the column/constraint body of the replacement table.
	Definition string
	// Select is the full SELECT statement mapping old rows into the new
	// shape; it may aggregate or filter.
	Select string
	// After holds statements run once the rename is done, e.g. index
	// creation on the rebuilt table.
	After []string
}

// ShadowRebuild reshapes a table where in-place alteration is not wanted:
// create the replacement under a shadow name, copy-transform the data,
// drop the original and rename the shadow into place. Reverse migrations
// replicate the same pattern symmetrically with an inverted plan.
func ShadowRebuild(ctx context.Context, exec Executor, plan RebuildPlan) error {
	shadow := plan.Table + "_shadow"
	steps := []string{
		fmt.Sprintf("CREATE TABLE %s (%s)", shadow, plan.Definition),
		fmt.Sprintf("INSERT INTO %s %s", shadow, plan.Select),
		fmt.Sprintf("DROP TABLE %s", plan.Table),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", shadow, plan.Table),
	}
	steps = append(steps, plan.After...)
	for _, s := range steps {
		if _, err := exec.Exec(ctx, s); err != nil {
			return fmt.Errorf("migrate: rebuild %s: %w", plan.Table, err)
		}
	}
	return nil
}
