// Package warehouse is the BigQuery adapter: order snapshot tables with
// exception lifecycle tracking, the users table, and per-order comments. The
// client is created lazily so the API server can start (and serve its health
// endpoint) before credentials are available.
package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// =============================================================================
// Configuration
// =============================================================================

// Config locates the warehouse dataset and tables.
type Config struct {
	ProjectID string
	Dataset   string

	StordTable    string
	ShipbobTable  string
	UsersTable    string
	CommentsTable string

	// CredentialsJSON is an inline service account key. Empty falls back to
	// application default credentials.
	CredentialsJSON string

	// Location is the dataset location used when creating the dataset.
	Location string
}

func (c *Config) applyDefaults() {
	if c.Dataset == "" {
		c.Dataset = "oos_workflow"
	}
	if c.StordTable == "" {
		c.StordTable = "stord_order_details"
	}
	if c.ShipbobTable == "" {
		c.ShipbobTable = "shipbob_order_details"
	}
	if c.UsersTable == "" {
		c.UsersTable = "users"
	}
	if c.CommentsTable == "" {
		c.CommentsTable = "comments"
	}
	if c.Location == "" {
		c.Location = "US"
	}
}

// Configured reports whether the warehouse can be reached at all.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.ProjectID) != ""
}

// =============================================================================
// Service
// =============================================================================

// Service is the warehouse client. Safe for concurrent use.
type Service struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	client *bigquery.Client
}

// NewService creates a warehouse service. No connection is made until the
// first operation.
func NewService(cfg Config, logger *slog.Logger) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, logger: logger}
}

// Close releases the underlying client, if one was ever created.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// Configured reports whether warehouse operations can be attempted.
func (s *Service) Configured() bool {
	return s.cfg.Configured()
}

// bq returns the lazily created client.
func (s *Service) bq(ctx context.Context) (*bigquery.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	if !s.cfg.Configured() {
		return nil, NewWarehouseError("Connect", "", "", "project is not set", ErrNotConfigured)
	}

	var opts []option.ClientOption
	if creds := stripWrappingQuotes(s.cfg.CredentialsJSON); creds != "" {
		if json.Valid([]byte(creds)) {
			s.logger.Info("initializing warehouse client with inline credentials")
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		} else {
			// Malformed inline keys are a recoverable misconfiguration:
			// fall back to default credentials instead of hard-failing.
			s.logger.Warn("inline credentials are not valid JSON, falling back to default credentials")
		}
	}

	client, err := bigquery.NewClient(ctx, s.cfg.ProjectID, opts...)
	if err != nil {
		return nil, NewWarehouseError("Connect", "", "", err.Error(), err)
	}
	s.client = client
	return client, nil
}

// stripWrappingQuotes removes one layer of surrounding quotes, a common
// artifact of .env files.
func stripWrappingQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// =============================================================================
// Table Management
// =============================================================================

// orderSchema is shared by both order snapshot tables; idCol differs per
// source.
func orderSchema(idCol string) bigquery.Schema {
	return bigquery.Schema{
		{Name: idCol, Type: bigquery.StringFieldType, Required: true},
		{Name: "raw_json", Type: bigquery.JSONFieldType},
		{Name: "source", Type: bigquery.StringFieldType, Required: true},
		{Name: "first_seen_timestamp", Type: bigquery.TimestampFieldType, Required: true},
		{Name: "last_seen_timestamp", Type: bigquery.TimestampFieldType, Required: true},
		{Name: "is_currently_in_exception", Type: bigquery.BooleanFieldType, Required: true},
		{Name: "resolved_timestamp", Type: bigquery.TimestampFieldType},
	}
}

var usersSchema = bigquery.Schema{
	{Name: "username", Type: bigquery.StringFieldType, Required: true},
	{Name: "hashed_password", Type: bigquery.StringFieldType, Required: true},
	{Name: "role", Type: bigquery.StringFieldType, Required: true},
}

var commentsSchema = bigquery.Schema{
	{Name: "id", Type: bigquery.StringFieldType, Required: true},
	{Name: "order_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "sku", Type: bigquery.StringFieldType, Required: true},
	{Name: "author", Type: bigquery.StringFieldType, Required: true},
	{Name: "text", Type: bigquery.StringFieldType, Required: true},
	{Name: "created_at", Type: bigquery.TimestampFieldType, Required: true},
}

// EnsureTables creates the dataset and every table the service uses, if
// missing. Idempotent.
func (s *Service) EnsureTables(ctx context.Context) error {
	client, err := s.bq(ctx)
	if err != nil {
		return err
	}

	ds := client.Dataset(s.cfg.Dataset)
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: s.cfg.Location}); err != nil {
		if !isAlreadyExists(err) {
			return NewWarehouseError("EnsureTables", "dataset", s.cfg.Dataset, err.Error(), err)
		}
	} else {
		s.logger.Info("created dataset", "dataset", s.cfg.Dataset)
	}

	tables := []struct {
		name   string
		schema bigquery.Schema
	}{
		{s.cfg.StordTable, orderSchema(stordIDColumn)},
		{s.cfg.ShipbobTable, orderSchema(shipbobIDColumn)},
		{s.cfg.UsersTable, usersSchema},
		{s.cfg.CommentsTable, commentsSchema},
	}
	for _, t := range tables {
		if err := ds.Table(t.name).Create(ctx, &bigquery.TableMetadata{Schema: t.schema}); err != nil {
			if isAlreadyExists(err) {
				continue
			}
			return NewWarehouseError("EnsureTables", "table", t.name, err.Error(), err)
		}
		s.logger.Info("created table", "table", t.name)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 409
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}

// tableRef renders a fully qualified `project.dataset.table` reference for
// query text.
func (s *Service) tableRef(table string) string {
	return "`" + s.cfg.ProjectID + "." + s.cfg.Dataset + "." + table + "`"
}

// nowUTC is the single clock used for sync timestamps.
func nowUTC() time.Time {
	return time.Now().UTC()
}
