package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/forest-dashboard/backend/internal/metrics"
	"github.com/forest-dashboard/backend/internal/models"
	"github.com/forest-dashboard/backend/internal/query"
	"github.com/forest-dashboard/backend/pkg/apperror"
	"github.com/forest-dashboard/backend/pkg/circuitbreaker"
	"github.com/forest-dashboard/backend/pkg/config"
	"github.com/forest-dashboard/backend/pkg/lazy"
	"github.com/forest-dashboard/backend/pkg/logger"
)

const backendName = "warehouse"

// Row is one result row keyed by column name. Values are whatever the driver
// produced; see FloatValue and DateValue.
type Row map[string]any

// Session is an open warehouse connection.
type Session interface {
	Query(ctx context.Context, stmt query.Statement) ([]Row, error)
	Close() error
}

// Opener builds a session from configuration. It should report missing or
// unusable settings as apperror configuration errors.
type Opener func(ctx context.Context, cfg config.WarehouseConfig) (Session, error)

type Client struct {
	cfg     config.WarehouseConfig
	dialect query.Dialect
	builder *query.Builder
	open    Opener
	session *lazy.Value[Session]
	cb      *circuitbreaker.CircuitBreaker
	timeout time.Duration
}

type Option func(*Client)

// WithOpener replaces the driver's session opener.
func WithOpener(open Opener) Option {
	return func(c *Client) {
		c.open = open
	}
}

func NewClient(cfg config.WarehouseConfig, opts ...Option) (*Client, error) {
	dialect, err := query.DialectByName(cfg.Driver)
	if err != nil {
		return nil, apperror.Configuration("unsupported warehouse driver", err)
	}

	c := &Client{
		cfg:     cfg,
		dialect: dialect,
		builder: query.NewBuilder(dialect, query.Tables{History: cfg.HistoryTable, Forecast: cfg.ForecastTable}),
		session: lazy.New[Session](cfg.InitTimeout()),
		timeout: cfg.QueryTimeout(),
		cb: circuitbreaker.NewCircuitBreaker(backendName, circuitbreaker.Config{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			IsSuccessful:     countsAsSuccess,
			OnStateChange:    metrics.BreakerStateChanged,
			Logger:           logger.GetLogger(),
		}),
	}

	switch dialect {
	case query.BigQuery:
		c.open = openBigQuery
	case query.SQLite:
		c.open = openSQLite
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func countsAsSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

func (c *Client) Dialect() query.Dialect {
	return c.dialect
}

func (c *Client) Builder() *query.Builder {
	return c.builder
}

func (c *Client) State() lazy.State {
	return c.session.State()
}

// Session returns the memoized session, opening it on first use.
func (c *Client) Session(ctx context.Context) (Session, error) {
	return c.session.Get(ctx, func(ctx context.Context) (Session, error) {
		sess, err := c.open(ctx, c.cfg)
		metrics.ObserveSessionInit(backendName, err)
		if err != nil {
			logger.Error("Failed to open warehouse session",
				zap.String("driver", c.dialect.Name()),
				zap.Error(err),
			)
			return nil, err
		}
		logger.Info("Warehouse session opened", zap.String("driver", c.dialect.Name()))
		return sess, nil
	})
}

// Query runs stmt once. Failures are returned as backend errors carrying the
// driver's message; nothing is retried.
func (c *Client) Query(ctx context.Context, name string, stmt query.Statement) ([]Row, error) {
	sess, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := circuitbreaker.Call(ctx, c.cb, func() ([]Row, error) {
		return sess.Query(ctx, stmt)
	})
	metrics.ObserveBackendCall(backendName, name, start, err)
	if err != nil {
		logger.Error("Warehouse query failed",
			zap.String("query", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, apperror.Backend(fmt.Sprintf("warehouse query %s failed", name), err)
	}

	logger.Debug("Warehouse query completed",
		zap.String("query", name),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rows, nil
}

// TestConnection runs a trivial query. It never returns an error; failures
// are reported in the result.
func (c *Client) TestConnection(ctx context.Context) (models.ConnectionResult, []Row) {
	rows, err := c.Query(ctx, "ping", query.PingQuery())
	if err != nil {
		return models.ConnectionResult{Success: false, Error: err.Error()}, nil
	}
	return models.ConnectionResult{Success: true}, rows
}

func (c *Client) Close() error {
	sess, ok := c.session.Load()
	if !ok {
		return nil
	}
	return sess.Close()
}
