// Package oracle talks to the external ranking oracle: the authoritative
// service that, for a keyword, returns the ranked listing with raw index
// values. Calls are rate limited, retried on transient failures and guarded
// by a circuit breaker so a degraded oracle never stalls local estimation.
package oracle

import (
	"time"
)

// Listing is one ranked entry returned by the oracle for a keyword query
type Listing struct {
	EntityID     string  `json:"entity_id"`
	EntityName   string  `json:"entity_name"`
	Rank         int     `json:"rank"`
	Index1       float64 `json:"index1"`
	Index2       float64 `json:"index2"`
	Index3       float64 `json:"index3"`
	BlogCount    int     `json:"blog_count"`
	VisitCount   int     `json:"visit_count"`
	SaveCount    int     `json:"save_count"`
	TrafficCount int     `json:"traffic_count"`
}

// QueryResult is the oracle answer for one keyword query
type QueryResult struct {
	Keyword   string    `json:"keyword"`
	Listings  []Listing `json:"listings"`
	FetchedAt time.Time `json:"fetched_at"`
}
