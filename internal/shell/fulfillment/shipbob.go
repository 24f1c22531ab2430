package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// =============================================================================
// ShipBob Client
// =============================================================================

const shipbobPartner = "shipbob"

// FontanaLocationID is ShipBob's identifier for the Fontana (CA) fulfillment
// center, reported separately from all other locations.
const FontanaLocationID = 250

// ShipbobConfig holds the ShipBob API settings.
type ShipbobConfig struct {
	BaseURL  string
	APIToken string

	// PageLimit is the per-page order count.
	PageLimit int

	// MaxPages caps order pagination; the order listing has no cursor and a
	// runaway loop would hammer the API.
	MaxPages int
}

// ShipbobClient talks to the ShipBob API.
type ShipbobClient struct {
	cfg    ShipbobConfig
	http   *http.Client
	logger *slog.Logger
}

// NewShipbobClient creates a ShipBob client.
func NewShipbobClient(cfg ShipbobConfig, logger *slog.Logger) *ShipbobClient {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 250
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 25
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &ShipbobClient{cfg: cfg, http: newHTTPClient(), logger: logger}
	if !c.Configured() {
		logger.Warn("shipbob client configuration incomplete")
	}
	return c
}

// Configured reports whether every required setting is present.
func (c *ShipbobClient) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.APIToken != ""
}

func (c *ShipbobClient) baseURL() string {
	return strings.TrimSuffix(c.cfg.BaseURL, "/")
}

// Orders lists orders page by page until an empty page or the page cap.
func (c *ShipbobClient) Orders(ctx context.Context) ([]map[string]any, error) {
	if !c.Configured() {
		return nil, newAPIError(shipbobPartner, "Orders", 0, "client is not configured", ErrNotConfigured)
	}

	var out []map[string]any
	for page := 1; ; page++ {
		if page > c.cfg.MaxPages {
			c.logger.Warn("shipbob order pagination hit page cap", "max_pages", c.cfg.MaxPages, "items", len(out))
			break
		}

		u := fmt.Sprintf("%s/order?page=%d&limit=%d&HasTracking=false", c.baseURL(), page, c.cfg.PageLimit)
		var batch []map[string]any
		status, err := getJSON(ctx, c.http, u, c.cfg.APIToken, &batch)
		if err != nil {
			return nil, newAPIError(shipbobPartner, "Orders", status, err.Error(), err)
		}
		if len(batch) == 0 {
			break
		}
		out = append(out, batch...)
		c.logger.Debug("fetched shipbob page", "page", page, "items", len(batch), "total", len(out))
	}
	c.logger.Info("fetched shipbob orders", "items", len(out))
	return out, nil
}

// OrderByID fetches one order. Returns ErrOrderNotFound on 404.
func (c *ShipbobClient) OrderByID(ctx context.Context, orderID string) (map[string]any, error) {
	if !c.Configured() {
		return nil, newAPIError(shipbobPartner, "OrderByID", 0, "client is not configured", ErrNotConfigured)
	}

	var order map[string]any
	status, err := getJSON(ctx, c.http, c.baseURL()+"/order/"+url.PathEscape(orderID), c.cfg.APIToken, &order)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, newAPIError(shipbobPartner, "OrderByID", status, "order not found", ErrOrderNotFound)
		}
		return nil, newAPIError(shipbobPartner, "OrderByID", status, err.Error(), err)
	}
	return order, nil
}

// shipbobInventoryPage is the inventory-level locations envelope.
type shipbobInventoryPage struct {
	Items []struct {
		Locations []struct {
			LocationID     int `json:"location_id"`
			OnHandQuantity int `json:"on_hand_quantity"`
		} `json:"locations"`
	} `json:"items"`
}

// SKUInventory returns on-hand stock for one SKU split into Fontana and
// everything else. Unknown SKUs report zero stock, not an error.
func (c *ShipbobClient) SKUInventory(ctx context.Context, sku string) (fontana, other int, err error) {
	if !c.Configured() {
		return 0, 0, newAPIError(shipbobPartner, "SKUInventory", 0, "client is not configured", ErrNotConfigured)
	}

	u := c.baseURL() + "/inventory-level/locations?SearchBy=" + url.QueryEscape(sku)
	var body shipbobInventoryPage
	status, err := getJSON(ctx, c.http, u, c.cfg.APIToken, &body)
	if err != nil {
		return 0, 0, newAPIError(shipbobPartner, "SKUInventory", status, err.Error(), err)
	}
	if len(body.Items) == 0 {
		c.logger.Debug("shipbob sku not found", "sku", sku)
		return 0, 0, nil
	}

	for _, loc := range body.Items[0].Locations {
		if loc.LocationID == FontanaLocationID {
			fontana += loc.OnHandQuantity
		} else {
			other += loc.OnHandQuantity
		}
	}
	return fontana, other, nil
}
