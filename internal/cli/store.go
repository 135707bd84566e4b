package cli

import (
	"context"
	"fmt"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/store"
)

// openStore opens and migrates the run database at --db.
func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(flagDB, logger)
	if err != nil {
		return nil, fmt.Errorf("open run database: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate run database: %w", err)
	}
	return st, nil
}
