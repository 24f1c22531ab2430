package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/trueclassic/oosflow/internal/core/orders"
)

// =============================================================================
// Order Snapshot Tables
// =============================================================================

// Each source has its own snapshot table keyed by the partner's primary ID.
const (
	stordIDColumn   = "order_number"
	shipbobIDColumn = "id"
)

func (s *Service) orderTable(source orders.Source) (table, idCol string) {
	if source == orders.SourceStord {
		return s.cfg.StordTable, stordIDColumn
	}
	return s.cfg.ShipbobTable, shipbobIDColumn
}

// rawOrderID extracts the partner primary ID from a raw payload.
func rawOrderID(idCol string, raw map[string]any) string {
	switch v := raw[idCol].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// =============================================================================
// Sync
// =============================================================================

// SyncRawOrders reconciles the snapshot table with the current batch of
// exception orders: new orders are inserted, still-present orders refreshed,
// and orders absent from the batch marked resolved. An empty batch resolves
// every open exception for the source.
//
// The batch is loaded into a per-run staging table that is dropped afterward;
// the reconciliation itself is a single MERGE so readers never observe a
// half-applied batch.
func (s *Service) SyncRawOrders(ctx context.Context, source orders.Source, raws []map[string]any, ts time.Time) error {
	client, err := s.bq(ctx)
	if err != nil {
		return err
	}

	table, idCol := s.orderTable(source)
	staging := fmt.Sprintf("staging_%s_%s", source, ts.UTC().Format("20060102150405"))
	s.logger.Info("starting warehouse sync", "source", source, "orders", len(raws))

	usingClause := fmt.Sprintf("(SELECT * FROM %s WHERE 1=0)", s.tableRef(table))
	if len(raws) > 0 {
		if err := s.loadStaging(ctx, client, staging, idCol, raws); err != nil {
			return err
		}
		defer func() {
			if err := client.Dataset(s.cfg.Dataset).Table(staging).Delete(context.WithoutCancel(ctx)); err != nil && !isNotFound(err) {
				s.logger.Warn("dropping staging table failed", "table", staging, "error", err)
			}
		}()
		usingClause = s.tableRef(staging)
	}

	mergeSQL := fmt.Sprintf(`
MERGE %s AS T
USING %s AS S
ON T.%s = S.%s AND T.source = @source

WHEN NOT MATCHED BY TARGET THEN
  INSERT (%s, raw_json, source, first_seen_timestamp,
          last_seen_timestamp, is_currently_in_exception, resolved_timestamp)
  VALUES (S.%s, S.raw_json, @source, @ts, @ts, TRUE, NULL)

WHEN MATCHED THEN
  UPDATE SET
    T.raw_json = S.raw_json,
    T.last_seen_timestamp = @ts,
    T.is_currently_in_exception = TRUE,
    T.resolved_timestamp = NULL

WHEN NOT MATCHED BY SOURCE AND T.is_currently_in_exception = TRUE AND T.source = @source THEN
  UPDATE SET
    T.is_currently_in_exception = FALSE,
    T.resolved_timestamp = @ts
`, s.tableRef(table), usingClause, idCol, idCol, idCol, idCol)

	q := client.Query(mergeSQL)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "source", Value: string(source)},
		{Name: "ts", Value: ts.UTC()},
	}
	job, err := q.Run(ctx)
	if err != nil {
		return NewWarehouseError("SyncRawOrders", "table", table, err.Error(), err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return NewWarehouseError("SyncRawOrders", "table", table, err.Error(), err)
	}
	if err := status.Err(); err != nil {
		return NewWarehouseError("SyncRawOrders", "table", table, err.Error(), err)
	}
	s.logger.Info("warehouse sync complete", "source", source)
	return nil
}

// loadStaging creates the staging table and loads the batch via a load job.
func (s *Service) loadStaging(ctx context.Context, client *bigquery.Client, staging, idCol string, raws []map[string]any) error {
	schema := bigquery.Schema{
		{Name: idCol, Type: bigquery.StringFieldType, Required: true},
		{Name: "raw_json", Type: bigquery.JSONFieldType, Required: true},
	}

	tbl := client.Dataset(s.cfg.Dataset).Table(staging)
	if err := tbl.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return NewWarehouseError("SyncRawOrders", "table", staging, err.Error(), err)
	}

	var ndjson strings.Builder
	loaded := 0
	for _, raw := range raws {
		id := rawOrderID(idCol, raw)
		if id == "" {
			s.logger.Warn("skipping order with missing primary id", "id_column", idCol)
			continue
		}
		rawText, err := json.Marshal(raw)
		if err != nil {
			s.logger.Warn("skipping unmarshalable order", "order_id", id, "error", err)
			continue
		}
		rowText, err := json.Marshal(map[string]any{
			idCol:      id,
			"raw_json": string(rawText),
		})
		if err != nil {
			continue
		}
		ndjson.Write(rowText)
		ndjson.WriteByte('\n')
		loaded++
	}
	if loaded == 0 {
		return nil
	}

	src := bigquery.NewReaderSource(strings.NewReader(ndjson.String()))
	src.SourceFormat = bigquery.JSON
	src.Schema = schema

	loader := tbl.LoaderFrom(src)
	job, err := loader.Run(ctx)
	if err != nil {
		return NewWarehouseError("SyncRawOrders", "table", staging, err.Error(), err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return NewWarehouseError("SyncRawOrders", "table", staging, err.Error(), err)
	}
	if err := status.Err(); err != nil {
		return NewWarehouseError("SyncRawOrders", "table", staging, err.Error(), err)
	}
	s.logger.Info("loaded staging table", "table", staging, "rows", loaded)
	return nil
}

// =============================================================================
// Queries
// =============================================================================

type rawJSONRow struct {
	RawJSON string `bigquery:"raw_json"`
}

func decodeRawRows(it *bigquery.RowIterator) ([]map[string]any, error) {
	var out []map[string]any
	for {
		var row rawJSONRow
		err := it.Next(&row)
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if row.RawJSON == "" {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(row.RawJSON), &raw); err != nil {
			continue
		}
		out = append(out, raw)
	}
}

// OOSOrders returns the raw payloads of every order currently in exception
// for a source, most recently seen first.
func (s *Service) OOSOrders(ctx context.Context, source orders.Source) ([]map[string]any, error) {
	client, err := s.bq(ctx)
	if err != nil {
		return nil, err
	}
	table, _ := s.orderTable(source)

	q := client.Query(fmt.Sprintf(
		"SELECT raw_json FROM %s WHERE source = @source AND is_currently_in_exception = TRUE ORDER BY last_seen_timestamp DESC",
		s.tableRef(table)))
	q.Parameters = []bigquery.QueryParameter{{Name: "source", Value: string(source)}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, NewWarehouseError("OOSOrders", "table", table, err.Error(), err)
	}
	raws, err := decodeRawRows(it)
	if err != nil {
		return nil, NewWarehouseError("OOSOrders", "table", table, err.Error(), err)
	}
	return raws, nil
}

// SourcedOrder is one historical order's raw payload tagged with the source
// table it came from.
type SourcedOrder struct {
	Source orders.Source
	Raw    map[string]any
}

// HistoricalOOSOrders returns every order, from both sources, that first
// entered exception within the date range, whether or not it has since
// resolved.
func (s *Service) HistoricalOOSOrders(ctx context.Context, start, end time.Time) ([]SourcedOrder, error) {
	client, err := s.bq(ctx)
	if err != nil {
		return nil, err
	}

	q := client.Query(fmt.Sprintf(`
SELECT source, raw_json
FROM (
    SELECT source, raw_json, first_seen_timestamp, is_currently_in_exception, resolved_timestamp FROM %s
    UNION ALL
    SELECT source, raw_json, first_seen_timestamp, is_currently_in_exception, resolved_timestamp FROM %s
)
WHERE (is_currently_in_exception = TRUE OR resolved_timestamp IS NOT NULL)
  AND first_seen_timestamp BETWEEN @start_date AND @end_date
`, s.tableRef(s.cfg.StordTable), s.tableRef(s.cfg.ShipbobTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: start.UTC()},
		{Name: "end_date", Value: end.UTC()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, NewWarehouseError("HistoricalOOSOrders", "", "", err.Error(), err)
	}

	var out []SourcedOrder
	for {
		var row struct {
			Source  string `bigquery:"source"`
			RawJSON string `bigquery:"raw_json"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, NewWarehouseError("HistoricalOOSOrders", "", "", err.Error(), err)
		}
		src, ok := orders.ParseSource(row.Source)
		if !ok || row.RawJSON == "" {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(row.RawJSON), &raw); err != nil {
			continue
		}
		out = append(out, SourcedOrder{Source: src, Raw: raw})
	}
}

// ResolvedOrderTimes returns first-seen/resolved pairs for resolution-time
// analytics within the date range.
func (s *Service) ResolvedOrderTimes(ctx context.Context, start, end time.Time) ([]ResolvedTimes, error) {
	client, err := s.bq(ctx)
	if err != nil {
		return nil, err
	}

	q := client.Query(fmt.Sprintf(`
SELECT source, first_seen_timestamp, resolved_timestamp
FROM (
    SELECT source, first_seen_timestamp, resolved_timestamp FROM %s
    UNION ALL
    SELECT source, first_seen_timestamp, resolved_timestamp FROM %s
)
WHERE resolved_timestamp IS NOT NULL
  AND first_seen_timestamp BETWEEN @start_date AND @end_date
`, s.tableRef(s.cfg.StordTable), s.tableRef(s.cfg.ShipbobTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: start.UTC()},
		{Name: "end_date", Value: end.UTC()},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, NewWarehouseError("ResolvedOrderTimes", "", "", err.Error(), err)
	}

	var out []ResolvedTimes
	for {
		var row ResolvedTimes
		err := it.Next(&row)
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, NewWarehouseError("ResolvedOrderTimes", "", "", err.Error(), err)
		}
		out = append(out, row)
	}
}

// ResolvedTimes is one resolved order's exception window.
type ResolvedTimes struct {
	Source     string    `bigquery:"source"`
	FirstSeen  time.Time `bigquery:"first_seen_timestamp"`
	ResolvedAt time.Time `bigquery:"resolved_timestamp"`
}

// OrderDetails returns the raw payload of one order, or ErrOrderNotFound.
func (s *Service) OrderDetails(ctx context.Context, source orders.Source, orderID string) (map[string]any, error) {
	client, err := s.bq(ctx)
	if err != nil {
		return nil, err
	}
	table, idCol := s.orderTable(source)

	q := client.Query(fmt.Sprintf(
		"SELECT raw_json FROM %s WHERE %s = @order_id AND source = @source LIMIT 1",
		s.tableRef(table), idCol))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "order_id", Value: orderID},
		{Name: "source", Value: string(source)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, NewWarehouseError("OrderDetails", "order", orderID, err.Error(), err)
	}
	raws, err := decodeRawRows(it)
	if err != nil {
		return nil, NewWarehouseError("OrderDetails", "order", orderID, err.Error(), err)
	}
	if len(raws) == 0 {
		return nil, NewWarehouseError("OrderDetails", "order", orderID, "order not found", ErrOrderNotFound)
	}
	return raws[0], nil
}

// LastRefreshTime returns the most recent sync timestamp across both order
// tables, or nil if nothing has ever synced.
func (s *Service) LastRefreshTime(ctx context.Context) (*time.Time, error) {
	client, err := s.bq(ctx)
	if err != nil {
		return nil, err
	}

	q := client.Query(fmt.Sprintf(`
SELECT MAX(last_seen_timestamp) AS last_refresh_time
FROM (
    SELECT last_seen_timestamp FROM %s
    UNION ALL
    SELECT last_seen_timestamp FROM %s
)
`, s.tableRef(s.cfg.StordTable), s.tableRef(s.cfg.ShipbobTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, NewWarehouseError("LastRefreshTime", "", "", err.Error(), err)
	}

	var row struct {
		LastRefreshTime bigquery.NullTimestamp `bigquery:"last_refresh_time"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return nil, NewWarehouseError("LastRefreshTime", "", "", err.Error(), err)
	}
	if !row.LastRefreshTime.Valid {
		return nil, nil
	}
	t := row.LastRefreshTime.Timestamp
	return &t, nil
}
