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
// Stord Client
// =============================================================================

const stordPartner = "stord"

// StordConfig holds the Stord OMS API settings.
type StordConfig struct {
	BaseURL   string
	APIToken  string
	OrgID     string
	NetworkID string

	// ChannelIDs and Statuses filter the sales order listing.
	ChannelIDs []string
	Statuses   []string

	// PageLimit is the per-page item count for paginated listings.
	PageLimit int
}

// StordClient talks to the Stord OMS API.
type StordClient struct {
	cfg    StordConfig
	http   *http.Client
	logger *slog.Logger
}

// NewStordClient creates a Stord client.
func NewStordClient(cfg StordConfig, logger *slog.Logger) *StordClient {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &StordClient{cfg: cfg, http: newHTTPClient(), logger: logger}
	if !c.Configured() {
		logger.Warn("stord client configuration incomplete")
	}
	return c
}

// Configured reports whether every required setting is present.
func (c *StordClient) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.APIToken != "" && c.cfg.OrgID != "" && c.cfg.NetworkID != ""
}

func (c *StordClient) networkURL(suffix string) string {
	return fmt.Sprintf("%s/organizations/%s/oms/networks/%s/%s",
		strings.TrimSuffix(c.cfg.BaseURL, "/"), c.cfg.OrgID, c.cfg.NetworkID, suffix)
}

// stordPage is the envelope every Stord listing endpoint returns.
type stordPage struct {
	Data     []map[string]any `json:"data"`
	Metadata struct {
		TotalCount int    `json:"total_count"`
		After      string `json:"after"`
	} `json:"metadata"`
}

// collectPages walks the cursor pagination until the "after" cursor runs out.
func (c *StordClient) collectPages(ctx context.Context, op, baseURL string, baseQuery url.Values, singlePage bool) ([]map[string]any, error) {
	if !c.Configured() {
		return nil, newAPIError(stordPartner, op, 0, "client is not configured", ErrNotConfigured)
	}

	var out []map[string]any
	after := ""
	page := 0
	for {
		page++
		query := url.Values{}
		for k, vs := range baseQuery {
			query[k] = vs
		}
		if after != "" {
			query.Set("after", after)
		}

		var body stordPage
		status, err := getJSON(ctx, c.http, baseURL+"?"+query.Encode(), c.cfg.APIToken, &body)
		if err != nil {
			return nil, newAPIError(stordPartner, op, status, err.Error(), err)
		}
		out = append(out, body.Data...)
		c.logger.Debug("fetched stord page", "op", op, "page", page, "items", len(body.Data), "total", body.Metadata.TotalCount)

		if singlePage || body.Metadata.After == "" {
			break
		}
		after = body.Metadata.After
	}
	c.logger.Info("fetched stord listing", "op", op, "pages", page, "items", len(out))
	return out, nil
}

// SalesOrders lists sales orders filtered by the configured channels and
// statuses, following the cursor through every page.
func (c *StordClient) SalesOrders(ctx context.Context) ([]map[string]any, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", c.cfg.PageLimit))
	for _, cid := range c.cfg.ChannelIDs {
		query.Add("channel_id[]", cid)
	}
	for _, st := range c.cfg.Statuses {
		query.Add("status[]", st)
	}
	return c.collectPages(ctx, "SalesOrders", c.networkURL("orders/sales"), query, false)
}

// OrderByID fetches one sales order via the search interface. Returns
// ErrOrderNotFound when nothing matches.
func (c *StordClient) OrderByID(ctx context.Context, orderID string) (map[string]any, error) {
	if !c.Configured() {
		return nil, newAPIError(stordPartner, "OrderByID", 0, "client is not configured", ErrNotConfigured)
	}

	query := url.Values{}
	query.Set("limit", "1")
	query.Set("search_field", "order_id")
	query.Set("search_term", orderID)

	var body stordPage
	status, err := getJSON(ctx, c.http, c.networkURL("orders/sales")+"?"+query.Encode(), c.cfg.APIToken, &body)
	if err != nil {
		return nil, newAPIError(stordPartner, "OrderByID", status, err.Error(), err)
	}
	if len(body.Data) == 0 {
		return nil, newAPIError(stordPartner, "OrderByID", 0, "order not found", ErrOrderNotFound)
	}
	return body.Data[0], nil
}

// SKUInventory returns the network-wide available stock for one SKU, summed
// across facilities. Unknown SKUs report zero.
func (c *StordClient) SKUInventory(ctx context.Context, sku string) (int, error) {
	if !c.Configured() {
		return 0, newAPIError(stordPartner, "SKUInventory", 0, "client is not configured", ErrNotConfigured)
	}

	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", c.cfg.PageLimit))
	query.Set("sku", sku)

	items, err := c.collectPages(ctx, "SKUInventory", c.networkURL("inventory/reports/network"), query, false)
	if err != nil {
		return 0, err
	}

	want := strings.ToLower(strings.TrimSpace(sku))
	total := 0
	for _, item := range items {
		itemSKU, _ := item["sku"].(string)
		if strings.ToLower(strings.TrimSpace(itemSKU)) != want {
			continue
		}
		if qty, ok := item["available_quantity"].(float64); ok {
			total += int(qty)
		}
	}
	return total, nil
}
