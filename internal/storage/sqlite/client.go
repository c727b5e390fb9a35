package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/forest-dashboard/backend/internal/query"
	"github.com/forest-dashboard/backend/pkg/logger"
)

// Client is a local copy of the warehouse tables, used for development and
// tests. Table names are the unqualified names the SQLite dialect produces.
type Client struct {
	db *sqlx.DB
}

func NewClient(ctx context.Context, dbPath string) (*Client, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite warehouse opened", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// InitSchema creates the yearly history and forecast tables. Dates are stored
// as YYYY-MM-DD text so date() arithmetic and comparisons stay lexical.
func (c *Client) InitSchema(ctx context.Context, tables query.Tables) error {
	hist, err := query.SQLite.Table(tables.History)
	if err != nil {
		return err
	}
	fc, err := query.SQLite.Table(tables.Forecast)
	if err != nil {
		return err
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		country TEXT NOT NULL,
		ds TEXT NOT NULL,
		loss_km2 REAL,
		PRIMARY KEY (country, ds)
	);

	CREATE TABLE IF NOT EXISTS %[2]s (
		country TEXT NOT NULL,
		ds TEXT NOT NULL,
		loss_km2_pred REAL,
		loss_km2_lo REAL,
		loss_km2_hi REAL,
		PRIMARY KEY (country, ds)
	);
	`, hist, fc)

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite warehouse schema initialized")
	return nil
}

type HistoryRow struct {
	Country string  `db:"country"`
	DS      string  `db:"ds"`
	LossKm2 float64 `db:"loss_km2"`
}

type ForecastRow struct {
	Country     string  `db:"country"`
	DS          string  `db:"ds"`
	LossKm2Pred float64 `db:"loss_km2_pred"`
	LossKm2Lo   float64 `db:"loss_km2_lo"`
	LossKm2Hi   float64 `db:"loss_km2_hi"`
}

func (c *Client) InsertHistory(ctx context.Context, table string, rows []HistoryRow) error {
	if len(rows) == 0 {
		return nil
	}
	name, err := query.SQLite.Table(table)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (country, ds, loss_km2)
		VALUES (:country, :ds, :loss_km2)
		ON CONFLICT(country, ds) DO UPDATE SET loss_km2 = excluded.loss_km2
	`, name)

	if _, err := c.db.NamedExecContext(ctx, stmt, rows); err != nil {
		return fmt.Errorf("failed to insert history rows: %w", err)
	}

	logger.Debug("History rows inserted", zap.Int("rows", len(rows)))
	return nil
}

func (c *Client) InsertForecast(ctx context.Context, table string, rows []ForecastRow) error {
	if len(rows) == 0 {
		return nil
	}
	name, err := query.SQLite.Table(table)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (country, ds, loss_km2_pred, loss_km2_lo, loss_km2_hi)
		VALUES (:country, :ds, :loss_km2_pred, :loss_km2_lo, :loss_km2_hi)
		ON CONFLICT(country, ds) DO UPDATE SET
			loss_km2_pred = excluded.loss_km2_pred,
			loss_km2_lo = excluded.loss_km2_lo,
			loss_km2_hi = excluded.loss_km2_hi
	`, name)

	if _, err := c.db.NamedExecContext(ctx, stmt, rows); err != nil {
		return fmt.Errorf("failed to insert forecast rows: %w", err)
	}

	logger.Debug("Forecast rows inserted", zap.Int("rows", len(rows)))
	return nil
}

// Query runs stmt with its parameters bound by name (@name in the SQL).
func (c *Client) Query(ctx context.Context, stmt query.Statement) ([]map[string]any, error) {
	rows, err := c.db.QueryxContext(ctx, stmt.SQL, namedArgs(stmt.Params)...)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return out, nil
}

func namedArgs(params map[string]any) []any {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names))
	for _, name := range names {
		args = append(args, sql.Named(name, params[name]))
	}
	return args
}
