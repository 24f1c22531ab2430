package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stordRawOrder() map[string]any {
	return map[string]any{
		"order_number":     "TC-1001",
		"status":           "open",
		"priority":         "standard",
		"channel":          "shopify",
		"channel_category": "d2c",
		"shipment_type":    "parcel",
		"custom_reference": "ref-9",
		"shipped_at":       "2026-08-01T12:30:00Z",
		"customer":         map[string]any{"name": "Ada Lovelace"},
		"facility_activities": []any{
			map[string]any{"facility_alias": "Las Vegas"},
		},
		"sales_order_lines": []any{
			map[string]any{
				"status": "backordered",
				"order_line_items": []any{
					map[string]any{"item_sku": "TEE-BLK-M", "item_quantity": float64(2)},
					map[string]any{"item_sku": "TEE-WHT-L", "item_quantity": "1"},
				},
			},
		},
	}
}

func shipbobRawOrder() map[string]any {
	return map[string]any{
		"id":           float64(4437),
		"order_number": "SB-4437",
		"status":       "Exception",
		"type":         "DTC",
		"created_date": "2026-08-02T08:00:00Z",
		"reference_id": "ref-sb",
		"channel":      map[string]any{"name": "Shopify"},
		"recipient": map[string]any{
			"name":  "Grace Hopper",
			"email": "grace@example.com",
		},
		"shipments": []any{
			map[string]any{
				"status":   "Exception",
				"location": map[string]any{"name": "Fontana (CA)"},
				"status_details": []any{
					map[string]any{"name": "OutOfStock", "description": "SKU out of stock"},
				},
				"products": []any{
					map[string]any{"sku": "HOODIE-GRY-S", "quantity": float64(1)},
				},
			},
		},
	}
}

func TestConvertStordOrder(t *testing.T) {
	got := ConvertStordOrder(stordRawOrder(), true)

	assert.Equal(t, "TC-1001", got.OrderID)
	assert.Equal(t, "TC-1001", got.OrderNumber)
	assert.Equal(t, SourceStord, got.Source)
	assert.Equal(t, "open", got.Status)
	assert.Equal(t, "Las Vegas", got.Facility)
	assert.Equal(t, "shopify", got.Channel)
	assert.Equal(t, "Ada Lovelace", got.Customer.Name)
	assert.NotNil(t, got.RawData)

	require.NotNil(t, got.ShippedAt)
	assert.Equal(t, time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC), got.ShippedAt.UTC())

	require.Len(t, got.LineItems, 2)
	assert.Equal(t, OrderLineItem{SKU: "TEE-BLK-M", Quantity: 2, Status: "backordered"}, got.LineItems[0])
	assert.Equal(t, OrderLineItem{SKU: "TEE-WHT-L", Quantity: 1, Status: "backordered"}, got.LineItems[1])
}

func TestConvertStordOrderStringCustomer(t *testing.T) {
	raw := stordRawOrder()
	raw["customer"] = "Plain Name"

	got := ConvertStordOrder(raw, false)

	assert.Equal(t, "Plain Name", got.Customer.Name)
	assert.Nil(t, got.RawData)
}

func TestConvertStordOrderMissingIdentifiers(t *testing.T) {
	got := ConvertStordOrder(map[string]any{}, false)

	// A synthetic ID is minted so the order is always addressable.
	assert.NotEmpty(t, got.OrderID)
	assert.Empty(t, got.OrderNumber)
	assert.Nil(t, got.PurchaseDate)
	assert.Empty(t, got.LineItems)
}

func TestConvertShipbobOrder(t *testing.T) {
	got := ConvertShipbobOrder(shipbobRawOrder(), true)

	assert.Equal(t, "4437", got.OrderID)
	assert.Equal(t, "SB-4437", got.OrderNumber)
	assert.Equal(t, SourceShipbob, got.Source)
	assert.Equal(t, "Fontana (CA)", got.Facility)
	assert.Equal(t, "Shopify", got.Channel)
	assert.Equal(t, "DTC", got.ChannelCategory)
	assert.Equal(t, "Grace Hopper", got.Customer.Name)
	assert.Equal(t, "grace@example.com", got.Customer.Email)

	require.Len(t, got.LineItems, 1)
	assert.Equal(t, OrderLineItem{SKU: "HOODIE-GRY-S", Quantity: 1, Status: "Exception"}, got.LineItems[0])
}

func TestConvertShipbobOrderBadTimestamp(t *testing.T) {
	raw := shipbobRawOrder()
	raw["created_date"] = "not-a-date"

	got := ConvertShipbobOrder(raw, false)

	assert.Nil(t, got.PurchaseDate)
	assert.Nil(t, got.ShippedAt)
}

func TestConvertDispatch(t *testing.T) {
	assert.Equal(t, SourceStord, Convert(SourceStord, stordRawOrder(), false).Source)
	assert.Equal(t, SourceShipbob, Convert(SourceShipbob, shipbobRawOrder(), false).Source)
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		in     string
		want   Source
		wantOK bool
	}{
		{"stord", SourceStord, true},
		{"Stord", SourceStord, true},
		{" SHIPBOB ", SourceShipbob, true},
		{"amazon", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSource(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRawIntCoercion(t *testing.T) {
	m := map[string]any{
		"f": float64(3),
		"i": 4,
		"s": " 5 ",
		"x": "abc",
	}

	v, ok := rawInt(m, "f")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = rawInt(m, "i")
	assert.True(t, ok)
	assert.Equal(t, 4, v)

	v, ok = rawInt(m, "s")
	assert.True(t, ok)
	assert.Equal(t, 5, v)

	_, ok = rawInt(m, "x")
	assert.False(t, ok)

	_, ok = rawInt(m, "missing")
	assert.False(t, ok)
}
