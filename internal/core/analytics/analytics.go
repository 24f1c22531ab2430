// Package analytics aggregates out-of-stock orders into the summary served by
// the analytics endpoint. Pure functions over normalized orders; no warehouse
// access.
package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/trueclassic/oosflow/internal/core/orders"
)

// =============================================================================
// Report Types
// =============================================================================

// SkuCount is one SKU with the number of affected orders.
type SkuCount struct {
	SKU    string `json:"sku"`
	Orders int    `json:"orders"`
}

// CustomerCount is one customer with the number of affected orders.
type CustomerCount struct {
	Name   string `json:"name"`
	Orders int    `json:"orders"`
}

// FacilityCount is one facility with the number of affected orders.
type FacilityCount struct {
	Facility string `json:"facility"`
	Orders   int    `json:"orders"`
}

// SourceStats summarizes one fulfillment partner.
type SourceStats struct {
	Source               orders.Source `json:"source"`
	Orders               int           `json:"orders"`
	AvgResolutionHours   float64       `json:"avg_resolution_hours"`
	ResolvedSampleOrders int           `json:"resolved_sample_orders"`
}

// CustomerImpact summarizes who stock-outs are hitting.
type CustomerImpact struct {
	AffectedCustomers int             `json:"affected_customers"`
	RepeatCustomers   int             `json:"repeat_customers"`
	TopCustomers      []CustomerCount `json:"top_customers"`
}

// Report is the full analytics payload.
type Report struct {
	TotalOrders      int             `json:"total_orders"`
	TopSkus          []SkuCount      `json:"top_skus"`
	CustomerImpact   CustomerImpact  `json:"customer_impact"`
	FacilityHotspots []FacilityCount `json:"facility_hotspots"`
	BySource         []SourceStats   `json:"by_source"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

const (
	topSkuLimit      = 10
	topCustomerLimit = 5
	topFacilityLimit = 5
)

// =============================================================================
// Aggregation
// =============================================================================

// ResolvedOrder pairs an order's first-seen and resolved timestamps, taken
// from the historical snapshot table. Used for resolution-time averages.
type ResolvedOrder struct {
	Source     orders.Source
	FirstSeen  time.Time
	ResolvedAt time.Time
}

// Build aggregates current OOS orders plus resolved historical orders into a
// report. Ties in any ranking break by name so output is deterministic.
func Build(current []orders.OrderDetails, resolved []ResolvedOrder, now time.Time) Report {
	skuCounts := make(map[string]int)
	skuDisplay := make(map[string]string)
	customerCounts := make(map[string]int)
	facilityCounts := make(map[string]int)
	sourceCounts := make(map[orders.Source]int)

	for _, o := range current {
		sourceCounts[o.Source]++

		seenSku := make(map[string]struct{})
		for _, li := range o.LineItems {
			if li.SKU == "" {
				continue
			}
			key := orders.NormalizeSKU(li.SKU)
			if _, dup := seenSku[key]; dup {
				continue
			}
			seenSku[key] = struct{}{}
			skuCounts[key]++
			if _, ok := skuDisplay[key]; !ok {
				skuDisplay[key] = li.SKU
			}
		}

		if name := strings.TrimSpace(o.Customer.Name); name != "" {
			customerCounts[name]++
		}
		if fac := strings.TrimSpace(o.Facility); fac != "" {
			facilityCounts[fac]++
		}
	}

	report := Report{
		TotalOrders:      len(current),
		TopSkus:          topSkus(skuCounts, skuDisplay),
		CustomerImpact:   customerImpact(customerCounts),
		FacilityHotspots: topFacilities(facilityCounts),
		BySource:         sourceStats(sourceCounts, resolved),
		GeneratedAt:      now.UTC(),
	}
	return report
}

func topSkus(counts map[string]int, display map[string]string) []SkuCount {
	out := make([]SkuCount, 0, len(counts))
	for key, n := range counts {
		out = append(out, SkuCount{SKU: display[key], Orders: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Orders != out[j].Orders {
			return out[i].Orders > out[j].Orders
		}
		return out[i].SKU < out[j].SKU
	})
	if len(out) > topSkuLimit {
		out = out[:topSkuLimit]
	}
	return out
}

func customerImpact(counts map[string]int) CustomerImpact {
	impact := CustomerImpact{AffectedCustomers: len(counts)}
	top := make([]CustomerCount, 0, len(counts))
	for name, n := range counts {
		if n > 1 {
			impact.RepeatCustomers++
		}
		top = append(top, CustomerCount{Name: name, Orders: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Orders != top[j].Orders {
			return top[i].Orders > top[j].Orders
		}
		return top[i].Name < top[j].Name
	})
	if len(top) > topCustomerLimit {
		top = top[:topCustomerLimit]
	}
	impact.TopCustomers = top
	return impact
}

func topFacilities(counts map[string]int) []FacilityCount {
	out := make([]FacilityCount, 0, len(counts))
	for fac, n := range counts {
		out = append(out, FacilityCount{Facility: fac, Orders: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Orders != out[j].Orders {
			return out[i].Orders > out[j].Orders
		}
		return out[i].Facility < out[j].Facility
	})
	if len(out) > topFacilityLimit {
		out = out[:topFacilityLimit]
	}
	return out
}

func sourceStats(counts map[orders.Source]int, resolved []ResolvedOrder) []SourceStats {
	type resolution struct {
		totalHours float64
		n          int
	}
	resolutions := make(map[orders.Source]*resolution)
	for _, r := range resolved {
		if r.ResolvedAt.Before(r.FirstSeen) {
			continue
		}
		res := resolutions[r.Source]
		if res == nil {
			res = &resolution{}
			resolutions[r.Source] = res
		}
		res.totalHours += r.ResolvedAt.Sub(r.FirstSeen).Hours()
		res.n++
	}

	sources := make(map[orders.Source]struct{})
	for s := range counts {
		sources[s] = struct{}{}
	}
	for s := range resolutions {
		sources[s] = struct{}{}
	}

	out := make([]SourceStats, 0, len(sources))
	for s := range sources {
		stats := SourceStats{Source: s, Orders: counts[s]}
		if res := resolutions[s]; res != nil && res.n > 0 {
			stats.AvgResolutionHours = res.totalHours / float64(res.n)
			stats.ResolvedSampleOrders = res.n
		}
		out = append(out, stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
