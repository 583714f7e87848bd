package query

import (
	"cmp"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"FlowRadar/internal/model"
)

const defaultTermsSize = 10

// MemorySearcher evaluates search requests over flow records held in memory.
// Index names are ignored: every stored record belongs to one logical index.
type MemorySearcher struct {
	mu      sync.RWMutex
	records []model.FlowRecord
}

// NewMemorySearcher creates a searcher preloaded with records.
func NewMemorySearcher(records ...model.FlowRecord) *MemorySearcher {
	m := &MemorySearcher{}
	m.records = append(m.records, records...)
	return m
}

// Write appends records to the store.
func (m *MemorySearcher) Write(_ context.Context, records []model.FlowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

// Len returns the number of stored records.
func (m *MemorySearcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Search implements model.Searcher.
func (m *MemorySearcher) Search(ctx context.Context, req *model.SearchRequest) (*model.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &QueryError{Backend: "memory", Err: err}
	}
	result, err := m.search(req)
	if err != nil {
		return nil, &QueryError{Backend: "memory", Err: err}
	}
	return result, nil
}

func (m *MemorySearcher) search(req *model.SearchRequest) (*model.SearchResult, error) {
	m.mu.RLock()
	matched, err := filterRecords(m.records, req.Filters)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	result := &model.SearchResult{}

	if len(req.Metrics) > 0 {
		result.Metrics, err = computeMetrics(matched, req.Metrics)
		if err != nil {
			return nil, err
		}
	}

	if req.Terms != nil {
		result.Buckets, err = computeTerms(matched, req.Terms)
		if err != nil {
			return nil, err
		}
	}

	if req.Size > 0 {
		hits := make([]model.FlowRecord, len(matched))
		copy(hits, matched)
		if err := sortRecords(hits, req.Sort); err != nil {
			return nil, err
		}
		if len(hits) > req.Size {
			hits = hits[:req.Size]
		}
		result.Hits = hits
	}

	return result, nil
}

func filterRecords(records []model.FlowRecord, filters []model.Range) ([]model.FlowRecord, error) {
	var out []model.FlowRecord
	for i := range records {
		ok, err := matches(&records[i], filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, records[i])
		}
	}
	return out, nil
}

func matches(r *model.FlowRecord, filters []model.Range) (bool, error) {
	for _, f := range filters {
		v, err := numericValue(r, f.Field)
		if err != nil {
			return false, err
		}
		if f.Gte != nil && v < *f.Gte {
			return false, nil
		}
		if f.Lte != nil && v > *f.Lte {
			return false, nil
		}
	}
	return true, nil
}

func computeMetrics(records []model.FlowRecord, metrics []model.Metric) (map[string]float64, error) {
	out := make(map[string]float64, len(metrics))
	for _, metric := range metrics {
		v, err := computeMetric(records, metric)
		if err != nil {
			return nil, err
		}
		out[metric.Name] = v
	}
	return out, nil
}

func computeMetric(records []model.FlowRecord, metric model.Metric) (float64, error) {
	switch metric.Kind {
	case model.MetricSum, model.MetricAvg:
		var sum float64
		for i := range records {
			v, err := numericValue(&records[i], metric.Field)
			if err != nil {
				return 0, err
			}
			sum += float64(v)
		}
		if metric.Kind == model.MetricAvg {
			if len(records) == 0 {
				return 0, nil
			}
			return sum / float64(len(records)), nil
		}
		return sum, nil
	case model.MetricCardinality:
		seen := make(map[string]struct{})
		for i := range records {
			v, err := keywordValue(&records[i], metric.Field)
			if err != nil {
				return 0, err
			}
			seen[v] = struct{}{}
		}
		return float64(len(seen)), nil
	case model.MetricValueCount:
		if !isFlowField(metric.Field) {
			return 0, fmt.Errorf("unknown flow field: %s", metric.Field)
		}
		return float64(len(records)), nil
	}
	return 0, fmt.Errorf("unsupported metric kind: %s", metric.Kind)
}

func computeTerms(records []model.FlowRecord, terms *model.Terms) ([]model.Bucket, error) {
	groups := make(map[string][]model.FlowRecord)
	var keys []string
	for i := range records {
		key, err := keywordValue(&records[i], terms.Field)
		if err != nil {
			return nil, err
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], records[i])
	}

	minDocCount := terms.MinDocCount
	if minDocCount < 1 {
		minDocCount = 1
	}

	buckets := make([]model.Bucket, 0, len(keys))
	for _, key := range keys {
		group := groups[key]
		if int64(len(group)) < minDocCount {
			continue
		}
		metrics, err := computeMetrics(group, terms.Metrics)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, model.Bucket{Key: key, DocCount: int64(len(group)), Metrics: metrics})
	}

	if terms.OrderBy != "" {
		found := false
		for _, metric := range terms.Metrics {
			if metric.Name == terms.OrderBy {
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("terms %s orders by unknown metric %s", terms.Name, terms.OrderBy)
		}
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		a, b := buckets[i], buckets[j]
		if terms.OrderBy != "" {
			if a.Metrics[terms.OrderBy] != b.Metrics[terms.OrderBy] {
				return a.Metrics[terms.OrderBy] > b.Metrics[terms.OrderBy]
			}
		} else if a.DocCount != b.DocCount {
			return a.DocCount > b.DocCount
		}
		return a.Key < b.Key
	})

	size := terms.Size
	if size <= 0 {
		size = defaultTermsSize
	}
	if len(buckets) > size {
		buckets = buckets[:size]
	}
	return buckets, nil
}

func sortRecords(records []model.FlowRecord, sorts []model.Sort) error {
	for _, s := range sorts {
		if !isFlowField(s.Field) {
			return fmt.Errorf("unsupported sort field: %s", s.Field)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, s := range sorts {
			c := compareField(&records[i], &records[j], s.Field)
			if c == 0 {
				continue
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

// compareField orders numeric fields by value and address fields as strings.
func compareField(a, b *model.FlowRecord, field string) int {
	if x, err := numericValue(a, field); err == nil {
		y, _ := numericValue(b, field)
		return cmp.Compare(x, y)
	}
	x, _ := keywordValue(a, field)
	y, _ := keywordValue(b, field)
	return strings.Compare(x, y)
}
