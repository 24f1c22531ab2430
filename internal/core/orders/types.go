// Package orders contains the normalized order model and pure conversion and
// out-of-stock detection logic for the two fulfillment sources. Everything in
// this package operates on plain values so it can be tested without a
// warehouse or a fulfillment API.
package orders

import "time"

// =============================================================================
// Sources
// =============================================================================

// Source identifies which fulfillment partner an order came from.
type Source string

const (
	SourceStord   Source = "stord"
	SourceShipbob Source = "shipbob"
)

// ParseSource normalizes a path segment to a known source.
// Returns false when the value names neither partner.
func ParseSource(s string) (Source, bool) {
	switch Source(normalizeLower(s)) {
	case SourceStord:
		return SourceStord, true
	case SourceShipbob:
		return SourceShipbob, true
	default:
		return "", false
	}
}

// =============================================================================
// Normalized Order Model
// =============================================================================

// OrderLineItem is a single SKU line within an order.
type OrderLineItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Status   string `json:"status"`
}

// Customer identifies the person an order ships to.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// OrderDetails is the normalized order shape served to clients, regardless of
// which partner produced the raw payload. OrderID is always populated; the
// remaining fields are best-effort extractions from the raw data.
type OrderDetails struct {
	OrderID         string          `json:"order_id"`
	OrderNumber     string          `json:"order_number,omitempty"`
	Status          string          `json:"status,omitempty"`
	Source          Source          `json:"source"`
	PurchaseDate    *time.Time      `json:"purchase_date,omitempty"`
	Priority        string          `json:"priority,omitempty"`
	Facility        string          `json:"facility,omitempty"`
	Channel         string          `json:"channel,omitempty"`
	ChannelCategory string          `json:"channel_category,omitempty"`
	ShipmentType    string          `json:"shipment_type,omitempty"`
	ShippedAt       *time.Time      `json:"shipped_at,omitempty"`
	Customer        Customer        `json:"customer"`
	CustomReference string          `json:"custom_reference,omitempty"`
	LineItems       []OrderLineItem `json:"line_items"`
	RawData         map[string]any  `json:"raw_data,omitempty"`
	LastUpdatedAt   time.Time       `json:"last_updated_at"`
}

// SkuInventory is the live stock position for one SKU across both partners.
type SkuInventory struct {
	SKU                 string `json:"sku"`
	StordStock          int    `json:"stord_stock"`
	ShipbobFontanaStock int    `json:"shipbob_fontana_stock"`
	ShipbobOtherStock   int    `json:"shipbob_other_stock"`
}

// NormalizeSKU returns the canonical lookup key for a SKU.
func NormalizeSKU(sku string) string {
	return normalizeLower(sku)
}
