package warehouse

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trueclassic/oosflow/internal/core/orders"
)

func testService(cfg Config) *Service {
	return NewService(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConfigDefaults(t *testing.T) {
	s := testService(Config{ProjectID: "proj"})

	assert.Equal(t, "oos_workflow", s.cfg.Dataset)
	assert.Equal(t, "stord_order_details", s.cfg.StordTable)
	assert.Equal(t, "shipbob_order_details", s.cfg.ShipbobTable)
	assert.Equal(t, "users", s.cfg.UsersTable)
	assert.Equal(t, "comments", s.cfg.CommentsTable)
	assert.Equal(t, "US", s.cfg.Location)
}

func TestUnconfiguredServiceFailsFast(t *testing.T) {
	s := testService(Config{})

	assert.False(t, s.Configured())

	_, err := s.OOSOrders(context.Background(), orders.SourceStord)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = s.LastRefreshTime(context.Background())
	assert.True(t, errors.Is(err, ErrNotConfigured))

	err = s.SyncRawOrders(context.Background(), orders.SourceStord, nil, nowUTC())
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestStripWrappingQuotes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"type":"service_account"}`, `{"type":"service_account"}`},
		{`"{"type":"service_account"}"`, `{"type":"service_account"}`},
		{`'{"x":1}'`, `{"x":1}`},
		{`  "quoted"  `, `quoted`},
		{`"`, `"`},
		{``, ``},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripWrappingQuotes(tt.in), "input %q", tt.in)
	}
}

func TestOrderTableSelection(t *testing.T) {
	s := testService(Config{ProjectID: "proj"})

	table, idCol := s.orderTable(orders.SourceStord)
	assert.Equal(t, "stord_order_details", table)
	assert.Equal(t, "order_number", idCol)

	table, idCol = s.orderTable(orders.SourceShipbob)
	assert.Equal(t, "shipbob_order_details", table)
	assert.Equal(t, "id", idCol)
}

func TestRawOrderID(t *testing.T) {
	assert.Equal(t, "TC-1001", rawOrderID("order_number", map[string]any{"order_number": "TC-1001"}))
	// ShipBob's numeric IDs come out of JSON as floats.
	assert.Equal(t, "4437", rawOrderID("id", map[string]any{"id": float64(4437)}))
	assert.Empty(t, rawOrderID("id", map[string]any{}))
	assert.Empty(t, rawOrderID("id", map[string]any{"id": true}))
}

func TestTableRef(t *testing.T) {
	s := testService(Config{ProjectID: "proj", Dataset: "ds"})

	assert.Equal(t, "`proj.ds.users`", s.tableRef("users"))
}

func TestWarehouseErrorFormatting(t *testing.T) {
	err := NewWarehouseError("OrderDetails", "order", "TC-1", "order not found", ErrOrderNotFound)

	assert.Equal(t, "OrderDetails order TC-1: order not found", err.Error())
	assert.True(t, errors.Is(err, ErrOrderNotFound))
}

func TestCloseWithoutClient(t *testing.T) {
	s := testService(Config{ProjectID: "proj"})

	assert.NoError(t, s.Close())
}
