package warehouse

import (
	"context"

	"github.com/forest-dashboard/backend/internal/query"
	"github.com/forest-dashboard/backend/internal/storage/sqlite"
	"github.com/forest-dashboard/backend/pkg/apperror"
	"github.com/forest-dashboard/backend/pkg/config"
)

type sqliteSession struct {
	db *sqlite.Client
}

// NewSQLiteSession wraps an already open store, for seeding tools and tests
// that need to write the tables before querying them.
func NewSQLiteSession(db *sqlite.Client) Session {
	return &sqliteSession{db: db}
}

func openSQLite(ctx context.Context, cfg config.WarehouseConfig) (Session, error) {
	if cfg.SQLitePath == "" {
		return nil, apperror.Configuration("warehouse.sqlitePath is required for the sqlite driver", nil)
	}

	db, err := sqlite.NewClient(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, apperror.Initialization("failed to initialize SQLite warehouse", err)
	}

	return &sqliteSession{db: db}, nil
}

func (s *sqliteSession) Query(ctx context.Context, stmt query.Statement) ([]Row, error) {
	maps, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, len(maps))
	for i, m := range maps {
		rows[i] = Row(m)
	}
	return rows, nil
}

func (s *sqliteSession) Close() error {
	return s.db.Close()
}
