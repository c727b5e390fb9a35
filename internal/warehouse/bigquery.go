package warehouse

import (
	"context"
	"sort"

	"cloud.google.com/go/bigquery"
	json "github.com/goccy/go-json"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/forest-dashboard/backend/internal/query"
	"github.com/forest-dashboard/backend/pkg/apperror"
	"github.com/forest-dashboard/backend/pkg/config"
)

const missingBigQueryEnv = "Missing BigQuery environment variables. Please set BIGQUERY_PROJECT_ID and BIGQUERY_CREDENTIALS_JSON " +
	"(or warehouse.projectID and warehouse.credentialsJSON in config.yaml)"

type bigQuerySession struct {
	client   *bigquery.Client
	location string
}

// checkBigQueryConfig validates the settings needed to open a BigQuery
// client without touching the network.
func checkBigQueryConfig(cfg config.WarehouseConfig) error {
	if cfg.ProjectID == "" || cfg.CredentialsJSON == "" {
		return apperror.Configuration(missingBigQueryEnv, nil)
	}

	var creds map[string]any
	if err := json.Unmarshal([]byte(cfg.CredentialsJSON), &creds); err != nil {
		return apperror.Configuration("failed to parse BigQuery credentials", err)
	}
	return nil
}

func openBigQuery(ctx context.Context, cfg config.WarehouseConfig) (Session, error) {
	if err := checkBigQueryConfig(cfg); err != nil {
		return nil, err
	}

	// The client keeps the context for token refreshes, so it must outlive
	// the initialization deadline.
	client, err := bigquery.NewClient(
		context.WithoutCancel(ctx),
		cfg.ProjectID,
		option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)),
	)
	if err != nil {
		return nil, apperror.Initialization("failed to initialize BigQuery client", err)
	}

	return &bigQuerySession{client: client, location: cfg.Location}, nil
}

func (s *bigQuerySession) Query(ctx context.Context, stmt query.Statement) ([]Row, error) {
	q := s.client.Query(stmt.SQL)
	q.Location = s.location
	q.Parameters = bigQueryParams(stmt.Params)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for {
		var values map[string]bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		row := make(Row, len(values))
		for k, v := range values {
			row[k] = v
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func (s *bigQuerySession) Close() error {
	return s.client.Close()
}

func bigQueryParams(params map[string]any) []bigquery.QueryParameter {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]bigquery.QueryParameter, 0, len(names))
	for _, name := range names {
		out = append(out, bigquery.QueryParameter{Name: name, Value: params[name]})
	}
	return out
}
