package model

import "context"

// MetricKind selects the aggregation applied to a numeric or keyword field.
type MetricKind string

const (
	MetricSum         MetricKind = "sum"
	MetricAvg         MetricKind = "avg"
	MetricCardinality MetricKind = "cardinality"
	MetricValueCount  MetricKind = "value_count"
)

// Metric is a named single-value aggregation.
type Metric struct {
	Name  string
	Kind  MetricKind
	Field string
}

// Range restricts a numeric field. A nil bound is open.
type Range struct {
	Field string
	Gte   *int64
	Lte   *int64
}

// Between is a closed range on field.
func Between(field string, gte, lte int64) Range {
	return Range{Field: field, Gte: &gte, Lte: &lte}
}

// AtLeast is a half-open range on field.
func AtLeast(field string, gte int64) Range {
	return Range{Field: field, Gte: &gte}
}

// Terms groups documents by the value of Field.
// OrderBy names one of Metrics to sort buckets descending by; empty means doc count.
type Terms struct {
	Name        string
	Field       string
	Size        int
	MinDocCount int64
	OrderBy     string
	Metrics     []Metric
}

// Sort orders hits by a field.
type Sort struct {
	Field string
	Desc  bool
}

// SearchRequest is a single query-and-aggregate call against the flow index.
// Size is the number of hits to return; 0 means aggregations only.
type SearchRequest struct {
	Indices []string
	Filters []Range
	Metrics []Metric
	Terms   *Terms
	Sort    []Sort
	Size    int
	Fields  []string
}

// Bucket is one group of a terms aggregation.
type Bucket struct {
	Key      string             `json:"key"`
	DocCount int64              `json:"doc_count"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

// SearchResult holds hits, top-level metrics and terms buckets.
type SearchResult struct {
	Hits    []FlowRecord
	Metrics map[string]float64
	Buckets []Bucket
}

// Searcher is the flow index query interface.
type Searcher interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
}
