package orders

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Raw Payload Accessors
// =============================================================================
//
// Raw orders arrive as decoded JSON (map[string]any) straight from the
// partner APIs or from the warehouse raw_json column. Field types are not
// guaranteed, so every accessor tolerates absence and wrong types.

func normalizeLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rawString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func rawMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

func rawSlice(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}

// rawInt accepts JSON numbers as well as numeric strings, which the partner
// APIs emit interchangeably for quantities.
func rawInt(m map[string]any, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

// parseTimestamp parses the RFC 3339 timestamps the partner APIs emit.
// Returns nil rather than an error on malformed input; the original payload
// is preserved in raw_data either way.
func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// =============================================================================
// Stord Conversion
// =============================================================================

// ConvertStordOrder converts a raw Stord sales order to the normalized model.
// When includeRaw is true the original payload is attached as raw_data.
func ConvertStordOrder(raw map[string]any, includeRaw bool) OrderDetails {
	var lineItems []OrderLineItem
	for _, solAny := range rawSlice(raw, "sales_order_lines") {
		sol, ok := solAny.(map[string]any)
		if !ok {
			continue
		}
		lineStatus := rawString(sol, "status")
		for _, oliAny := range rawSlice(sol, "order_line_items") {
			oli, ok := oliAny.(map[string]any)
			if !ok {
				continue
			}
			qty, _ := rawInt(oli, "item_quantity")
			lineItems = append(lineItems, OrderLineItem{
				SKU:      rawString(oli, "item_sku"),
				Quantity: qty,
				Status:   lineStatus,
			})
		}
	}

	// Customer may be a bare name or a nested object.
	var customerName string
	switch c := raw["customer"].(type) {
	case string:
		customerName = c
	case map[string]any:
		customerName = rawString(c, "name")
	}

	shippedAtStr := rawString(raw, "shipped_at")
	if shippedAtStr == "" {
		shippedAtStr = rawString(raw, "external_posted_at")
	}
	shippedAt := parseTimestamp(shippedAtStr)

	var facility string
	if acts := rawSlice(raw, "facility_activities"); len(acts) > 0 {
		if first, ok := acts[0].(map[string]any); ok {
			facility = rawString(first, "facility_alias")
		}
	}

	orderID := rawString(raw, "order_number")
	if orderID == "" {
		orderID = rawString(raw, "order_id")
	}
	if orderID == "" {
		orderID = uuid.New().String()
	}

	details := OrderDetails{
		OrderID:         orderID,
		OrderNumber:     rawString(raw, "order_number"),
		Status:          rawString(raw, "status"),
		Source:          SourceStord,
		PurchaseDate:    shippedAt,
		Priority:        rawString(raw, "priority"),
		Facility:        facility,
		Channel:         rawString(raw, "channel"),
		ChannelCategory: rawString(raw, "channel_category"),
		ShipmentType:    rawString(raw, "shipment_type"),
		ShippedAt:       shippedAt,
		Customer:        Customer{Name: customerName},
		CustomReference: rawString(raw, "custom_reference"),
		LineItems:       lineItems,
		LastUpdatedAt:   time.Now().UTC(),
	}
	if includeRaw {
		details.RawData = raw
	}
	return details
}

// =============================================================================
// ShipBob Conversion
// =============================================================================

// ConvertShipbobOrder converts a raw ShipBob order to the normalized model.
func ConvertShipbobOrder(raw map[string]any, includeRaw bool) OrderDetails {
	var lineItems []OrderLineItem
	var facility string
	shipments := rawSlice(raw, "shipments")
	for i, shipAny := range shipments {
		shipment, ok := shipAny.(map[string]any)
		if !ok {
			continue
		}
		if i == 0 {
			facility = rawString(rawMap(shipment, "location"), "name")
		}
		shipmentStatus := rawString(shipment, "status")
		for _, prodAny := range rawSlice(shipment, "products") {
			product, ok := prodAny.(map[string]any)
			if !ok {
				continue
			}
			qty, _ := rawInt(product, "quantity")
			lineItems = append(lineItems, OrderLineItem{
				SKU:      rawString(product, "sku"),
				Quantity: qty,
				Status:   shipmentStatus,
			})
		}
	}

	recipient := rawMap(raw, "recipient")
	createdAt := parseTimestamp(rawString(raw, "created_date"))

	// ShipBob order IDs are numeric in JSON.
	var orderID string
	switch id := raw["id"].(type) {
	case float64:
		orderID = strconv.FormatInt(int64(id), 10)
	case string:
		orderID = id
	}
	if orderID == "" {
		orderID = uuid.New().String()
	}

	details := OrderDetails{
		OrderID:         orderID,
		OrderNumber:     rawString(raw, "order_number"),
		Status:          rawString(raw, "status"),
		Source:          SourceShipbob,
		PurchaseDate:    createdAt,
		Facility:        facility,
		Channel:         rawString(rawMap(raw, "channel"), "name"),
		ChannelCategory: rawString(raw, "type"),
		ShipmentType:    rawString(raw, "shipping_method"),
		ShippedAt:       createdAt,
		Customer: Customer{
			Name:  rawString(recipient, "name"),
			Email: rawString(recipient, "email"),
		},
		CustomReference: rawString(raw, "reference_id"),
		LineItems:       lineItems,
		LastUpdatedAt:   time.Now().UTC(),
	}
	if includeRaw {
		details.RawData = raw
	}
	return details
}

// Convert dispatches to the per-source conversion.
func Convert(source Source, raw map[string]any, includeRaw bool) OrderDetails {
	if source == SourceStord {
		return ConvertStordOrder(raw, includeRaw)
	}
	return ConvertShipbobOrder(raw, includeRaw)
}
