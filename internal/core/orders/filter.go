package orders

// =============================================================================
// Out-of-Stock Detection
// =============================================================================
//
// Each partner signals stock-outs differently. Stord marks individual sales
// order lines "backordered"; ShipBob marks DTC shipments "Exception" with an
// "OutOfStock" status detail. Both detectors operate on raw payloads so that
// orders fetched from the partner API and orders replayed from the warehouse
// behave identically.

const (
	stordBackorderedStatus = "backordered"

	shipbobDTCType         = "dtc"
	shipbobExceptionStatus = "exception"
	shipbobOutOfStockCode  = "outofstock"
)

// StordOrderIsOOS reports whether any sales order line is backordered.
func StordOrderIsOOS(raw map[string]any) bool {
	for _, solAny := range rawSlice(raw, "sales_order_lines") {
		sol, ok := solAny.(map[string]any)
		if !ok {
			continue
		}
		if normalizeLower(rawString(sol, "status")) == stordBackorderedStatus {
			return true
		}
	}
	return false
}

// StordOOSSkus returns the deduplicated SKUs on backordered lines, in
// first-seen order.
func StordOOSSkus(raw map[string]any) []string {
	var skus []string
	seen := make(map[string]struct{})
	for _, solAny := range rawSlice(raw, "sales_order_lines") {
		sol, ok := solAny.(map[string]any)
		if !ok {
			continue
		}
		if normalizeLower(rawString(sol, "status")) != stordBackorderedStatus {
			continue
		}
		for _, oliAny := range rawSlice(sol, "order_line_items") {
			oli, ok := oliAny.(map[string]any)
			if !ok {
				continue
			}
			sku := rawString(oli, "item_sku")
			if sku == "" {
				continue
			}
			key := NormalizeSKU(sku)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			skus = append(skus, sku)
		}
	}
	return skus
}

// shipbobOOSShipment reports whether a single shipment is stuck on stock.
func shipbobOOSShipment(shipment map[string]any) bool {
	if normalizeLower(rawString(shipment, "status")) != shipbobExceptionStatus {
		return false
	}
	for _, detAny := range rawSlice(shipment, "status_details") {
		det, ok := detAny.(map[string]any)
		if !ok {
			continue
		}
		if normalizeLower(rawString(det, "name")) == shipbobOutOfStockCode {
			return true
		}
	}
	return false
}

// ShipbobOrderIsOOS reports whether a DTC order has a shipment in Exception
// with an OutOfStock status detail. Non-DTC orders (B2B, wholesale) are never
// considered out of stock here.
func ShipbobOrderIsOOS(raw map[string]any) bool {
	if normalizeLower(rawString(raw, "type")) != shipbobDTCType {
		return false
	}
	for _, shipAny := range rawSlice(raw, "shipments") {
		shipment, ok := shipAny.(map[string]any)
		if !ok {
			continue
		}
		if shipbobOOSShipment(shipment) {
			return true
		}
	}
	return false
}

// ShipbobOOSSkus returns the deduplicated SKUs on stock-blocked shipments,
// in first-seen order.
func ShipbobOOSSkus(raw map[string]any) []string {
	var skus []string
	seen := make(map[string]struct{})
	if normalizeLower(rawString(raw, "type")) != shipbobDTCType {
		return nil
	}
	for _, shipAny := range rawSlice(raw, "shipments") {
		shipment, ok := shipAny.(map[string]any)
		if !ok {
			continue
		}
		if !shipbobOOSShipment(shipment) {
			continue
		}
		for _, prodAny := range rawSlice(shipment, "products") {
			product, ok := prodAny.(map[string]any)
			if !ok {
				continue
			}
			sku := rawString(product, "sku")
			if sku == "" {
				continue
			}
			key := NormalizeSKU(sku)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			skus = append(skus, sku)
		}
	}
	return skus
}

// IsOOS dispatches to the per-source detector.
func IsOOS(source Source, raw map[string]any) bool {
	if source == SourceStord {
		return StordOrderIsOOS(raw)
	}
	return ShipbobOrderIsOOS(raw)
}

// OOSSkus dispatches to the per-source SKU extractor.
func OOSSkus(source Source, raw map[string]any) []string {
	if source == SourceStord {
		return StordOOSSkus(raw)
	}
	return ShipbobOOSSkus(raw)
}

// FilterOOS keeps only the raw orders the per-source detector flags.
func FilterOOS(source Source, raws []map[string]any) []map[string]any {
	var out []map[string]any
	for _, raw := range raws {
		if IsOOS(source, raw) {
			out = append(out, raw)
		}
	}
	return out
}
