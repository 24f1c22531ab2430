package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStordOrderIsOOS(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want bool
	}{
		{
			name: "backordered line",
			raw:  stordRawOrder(),
			want: true,
		},
		{
			name: "all lines fulfilled",
			raw: map[string]any{
				"sales_order_lines": []any{
					map[string]any{"status": "shipped"},
					map[string]any{"status": "packed"},
				},
			},
			want: false,
		},
		{
			name: "status case insensitive",
			raw: map[string]any{
				"sales_order_lines": []any{
					map[string]any{"status": "Backordered"},
				},
			},
			want: true,
		},
		{
			name: "no lines",
			raw:  map[string]any{},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StordOrderIsOOS(tt.raw))
		})
	}
}

func TestStordOOSSkusDedupes(t *testing.T) {
	raw := map[string]any{
		"sales_order_lines": []any{
			map[string]any{
				"status": "backordered",
				"order_line_items": []any{
					map[string]any{"item_sku": "TEE-BLK-M"},
					map[string]any{"item_sku": "tee-blk-m"},
					map[string]any{"item_sku": "TEE-WHT-L"},
				},
			},
			map[string]any{
				"status": "shipped",
				"order_line_items": []any{
					map[string]any{"item_sku": "IGNORED"},
				},
			},
		},
	}

	assert.Equal(t, []string{"TEE-BLK-M", "TEE-WHT-L"}, StordOOSSkus(raw))
}

func TestShipbobOrderIsOOS(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want bool
	}{
		{
			name: "dtc exception out of stock",
			raw:  shipbobRawOrder(),
			want: true,
		},
		{
			name: "b2b orders never flagged",
			raw: func() map[string]any {
				raw := shipbobRawOrder()
				raw["type"] = "B2B"
				return raw
			}(),
			want: false,
		},
		{
			name: "exception for other reason",
			raw: map[string]any{
				"type": "DTC",
				"shipments": []any{
					map[string]any{
						"status": "Exception",
						"status_details": []any{
							map[string]any{"name": "InvalidAddress"},
						},
					},
				},
			},
			want: false,
		},
		{
			name: "out of stock detail without exception status",
			raw: map[string]any{
				"type": "DTC",
				"shipments": []any{
					map[string]any{
						"status": "Processing",
						"status_details": []any{
							map[string]any{"name": "OutOfStock"},
						},
					},
				},
			},
			want: false,
		},
		{
			name: "no shipments",
			raw:  map[string]any{"type": "DTC"},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShipbobOrderIsOOS(tt.raw))
		})
	}
}

func TestShipbobOOSSkus(t *testing.T) {
	raw := shipbobRawOrder()

	assert.Equal(t, []string{"HOODIE-GRY-S"}, ShipbobOOSSkus(raw))

	raw["type"] = "B2B"
	assert.Nil(t, ShipbobOOSSkus(raw))
}

func TestFilterOOS(t *testing.T) {
	fulfilled := map[string]any{
		"sales_order_lines": []any{map[string]any{"status": "shipped"}},
	}
	raws := []map[string]any{stordRawOrder(), fulfilled, stordRawOrder()}

	got := FilterOOS(SourceStord, raws)

	assert.Len(t, got, 2)
}

func TestOOSSkusDispatch(t *testing.T) {
	assert.Equal(t, []string{"TEE-BLK-M", "TEE-WHT-L"}, OOSSkus(SourceStord, stordRawOrder()))
	assert.Equal(t, []string{"HOODIE-GRY-S"}, OOSSkus(SourceShipbob, shipbobRawOrder()))
}
