package api

import (
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// OpenAPI Document
// =============================================================================

var (
	specOnce sync.Once
	specDoc  *openapi3.T
)

func (h *Handler) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	specOnce.Do(func() {
		specDoc = buildOpenAPISpec(h.cfg.Version)
	})
	h.writeJSON(w, http.StatusOK, specDoc)
}

// buildOpenAPISpec assembles the OpenAPI 3 document for the fixed route set.
func buildOpenAPISpec(version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "OOS Workflow API",
			Version:     version,
			Description: "Out-of-stock order tracking across fulfillment partners",
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			SecuritySchemes: openapi3.SecuritySchemes{
				"basicAuth":  &openapi3.SecuritySchemeRef{Value: openapi3.NewSecurityScheme().WithType("http").WithScheme("basic")},
				"bearerAuth": &openapi3.SecuritySchemeRef{Value: openapi3.NewSecurityScheme().WithType("http").WithScheme("bearer").WithBearerFormat("JWT")},
			},
		},
	}

	public := func(path, method, summary string) {
		addOperation(doc, path, method, summary, false)
	}
	secured := func(path, method, summary string) {
		addOperation(doc, path, method, summary, true)
	}

	public("/", "GET", "Service banner")
	public("/health", "GET", "Liveness check")
	public("/ready", "GET", "Readiness check")
	public("/token", "POST", "Exchange credentials for a bearer token")

	secured("/api/{source}/oos-orders", "GET", "List currently out-of-stock orders for a source")
	secured("/api/{source}/order-details/{orderID}", "GET", "Fetch one order's details")
	secured("/api/trigger-refresh", "POST", "Trigger a full background refresh")
	secured("/api/trigger-refresh/{source}", "POST", "Trigger a single-source refresh")
	secured("/api/last-refresh-time", "GET", "Most recent sync timestamp")
	secured("/api/inventory/bulk", "POST", "Live inventory for a set of SKUs")
	secured("/api/analytics", "GET", "Historical out-of-stock analytics")
	secured("/api/refresh-jobs", "GET", "Recent refresh job records")
	secured("/api/comments", "POST", "Add an order comment")
	secured("/api/comments", "GET", "List comments by order or SKU")
	secured("/api/users", "POST", "Create a user (admin)")
	secured("/api/users", "GET", "List users (admin)")
	secured("/api/users/me", "GET", "Current identity")
	secured("/api/users/me/reset-password", "PUT", "Change own password")
	secured("/api/users/{username}/force-reset-password", "PUT", "Reset a user's password (admin)")
	secured("/api/users/{username}", "DELETE", "Delete a user (admin)")

	return doc
}

func addOperation(doc *openapi3.T, path, method, summary string, auth bool) {
	op := openapi3.NewOperation()
	op.Summary = summary
	op.Responses = openapi3.NewResponses()
	if auth {
		op.Security = openapi3.NewSecurityRequirements().
			With(openapi3.NewSecurityRequirement().Authenticate("basicAuth")).
			With(openapi3.NewSecurityRequirement().Authenticate("bearerAuth"))
	}

	item := doc.Paths.Value(path)
	if item == nil {
		item = &openapi3.PathItem{}
		doc.Paths.Set(path, item)
	}
	item.SetOperation(method, op)
}
