package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"FlowRadar/internal/config"
	"FlowRadar/internal/model"

	"github.com/elastic/go-elasticsearch/v8"
	log "github.com/sirupsen/logrus"
)

// ElasticSearcher runs search requests against an Elasticsearch cluster.
type ElasticSearcher struct {
	client *elasticsearch.Client
}

// NewElasticSearcher creates a searcher for the configured cluster.
func NewElasticSearcher(cfg config.ElasticsearchConfig) (*ElasticSearcher, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	if cfg.Timeout != "" {
		timeout, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid elasticsearch timeout: %w", err)
		}
		esCfg.Transport = &http.Transport{ResponseHeaderTimeout: timeout}
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	log.WithField("addresses", cfg.Addresses).Info("Elasticsearch client configured")
	return &ElasticSearcher{client: client}, nil
}

// Search implements model.Searcher. Missing indices are skipped rather than failing
// the request, so a window reaching into a day without data still answers.
func (s *ElasticSearcher) Search(ctx context.Context, req *model.SearchRequest) (*model.SearchResult, error) {
	body, err := json.Marshal(buildSearchBody(req))
	if err != nil {
		return nil, &QueryError{Backend: "elasticsearch", Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(req.Indices...),
		s.client.Search.WithBody(bytes.NewReader(body)),
		s.client.Search.WithIgnoreUnavailable(true),
		s.client.Search.WithAllowNoIndices(true),
	)
	if err != nil {
		return nil, &QueryError{Backend: "elasticsearch", Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &QueryError{Backend: "elasticsearch", Status: res.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if res.IsError() {
		return nil, newElasticError(res.StatusCode, raw)
	}

	result, err := decodeSearchResponse(raw, req)
	if err != nil {
		return nil, &QueryError{Backend: "elasticsearch", Status: res.StatusCode, Err: err}
	}
	return result, nil
}

func newElasticError(status int, raw []byte) *QueryError {
	qe := &QueryError{Backend: "elasticsearch", Status: status}

	var envelope struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Type != "" {
		qe.Err = fmt.Errorf("%s: %s", envelope.Error.Type, envelope.Error.Reason)
	} else {
		qe.Err = errors.New(http.StatusText(status))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err == nil {
		qe.Detail = pretty.String()
	} else if len(raw) > 0 {
		qe.Detail = string(raw)
	}
	return qe
}

// buildSearchBody renders the request as Elasticsearch query DSL.
func buildSearchBody(req *model.SearchRequest) map[string]any {
	body := map[string]any{
		"size":  req.Size,
		"query": buildQuery(req.Filters),
	}

	aggs := map[string]any{}
	for name, agg := range metricAggs(req.Metrics) {
		aggs[name] = agg
	}
	if t := req.Terms; t != nil {
		terms := map[string]any{"field": t.Field}
		if t.Size > 0 {
			terms["size"] = t.Size
		}
		if t.MinDocCount > 0 {
			terms["min_doc_count"] = t.MinDocCount
		}
		// Ties at the size cut resolve by key in every backend.
		orderBy := "_count"
		if t.OrderBy != "" {
			orderBy = t.OrderBy
		}
		terms["order"] = []map[string]string{{orderBy: "desc"}, {"_key": "asc"}}
		termsAgg := map[string]any{"terms": terms}
		if len(t.Metrics) > 0 {
			termsAgg["aggs"] = metricAggs(t.Metrics)
		}
		aggs[t.Name] = termsAgg
	}
	if len(aggs) > 0 {
		body["aggs"] = aggs
	}

	if len(req.Sort) > 0 {
		sorts := make([]map[string]string, 0, len(req.Sort))
		for _, s := range req.Sort {
			order := "asc"
			if s.Desc {
				order = "desc"
			}
			sorts = append(sorts, map[string]string{s.Field: order})
		}
		body["sort"] = sorts
	}
	if len(req.Fields) > 0 {
		body["_source"] = req.Fields
	}
	return body
}

func buildQuery(filters []model.Range) map[string]any {
	clauses := make([]map[string]any, 0, len(filters))
	for _, f := range filters {
		bounds := map[string]int64{}
		if f.Gte != nil {
			bounds["gte"] = *f.Gte
		}
		if f.Lte != nil {
			bounds["lte"] = *f.Lte
		}
		clauses = append(clauses, map[string]any{"range": map[string]any{f.Field: bounds}})
	}

	switch len(clauses) {
	case 0:
		return map[string]any{"match_all": map[string]any{}}
	case 1:
		return clauses[0]
	}
	return map[string]any{"bool": map[string]any{"must": clauses}}
}

func metricAggs(metrics []model.Metric) map[string]any {
	aggs := make(map[string]any, len(metrics))
	for _, m := range metrics {
		aggs[m.Name] = map[string]any{string(m.Kind): map[string]string{"field": m.Field}}
	}
	return aggs
}

type esHit struct {
	Source model.FlowRecord `json:"_source"`
}

type esResponse struct {
	Hits struct {
		Hits []esHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

// esValue is a single-value metric aggregation; Value is null on empty input.
type esValue struct {
	Value *float64 `json:"value"`
}

func (v esValue) float() float64 {
	if v.Value == nil {
		return 0
	}
	return *v.Value
}

func decodeSearchResponse(raw []byte, req *model.SearchRequest) (*model.SearchResult, error) {
	var resp esResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	result := &model.SearchResult{}
	for _, hit := range resp.Hits.Hits {
		result.Hits = append(result.Hits, hit.Source)
	}

	if len(req.Metrics) > 0 {
		result.Metrics = make(map[string]float64, len(req.Metrics))
		for _, m := range req.Metrics {
			v, err := decodeValue(resp.Aggregations[m.Name])
			if err != nil {
				return nil, fmt.Errorf("aggregation %s: %w", m.Name, err)
			}
			result.Metrics[m.Name] = v
		}
	}

	if req.Terms != nil {
		buckets, err := decodeBuckets(resp.Aggregations[req.Terms.Name], req.Terms.Metrics)
		if err != nil {
			return nil, fmt.Errorf("aggregation %s: %w", req.Terms.Name, err)
		}
		result.Buckets = buckets
	}
	return result, nil
}

func decodeValue(raw json.RawMessage) (float64, error) {
	if raw == nil {
		return 0, fmt.Errorf("missing from response")
	}
	var v esValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v.float(), nil
}

func decodeBuckets(raw json.RawMessage, metrics []model.Metric) ([]model.Bucket, error) {
	if raw == nil {
		return nil, fmt.Errorf("missing from response")
	}
	var agg struct {
		Buckets []map[string]json.RawMessage `json:"buckets"`
	}
	if err := json.Unmarshal(raw, &agg); err != nil {
		return nil, err
	}

	buckets := make([]model.Bucket, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		key, err := decodeKey(b["key"])
		if err != nil {
			return nil, err
		}
		var docCount int64
		if err := json.Unmarshal(b["doc_count"], &docCount); err != nil {
			return nil, fmt.Errorf("bucket %s: invalid doc_count: %w", key, err)
		}
		bucket := model.Bucket{Key: key, DocCount: docCount, Metrics: make(map[string]float64, len(metrics))}
		for _, m := range metrics {
			v, err := decodeValue(b[m.Name])
			if err != nil {
				return nil, fmt.Errorf("bucket %s metric %s: %w", key, m.Name, err)
			}
			bucket.Metrics[m.Name] = v
		}
		buckets = append(buckets, bucket)
	}
	return buckets, nil
}

// decodeKey accepts keyword keys ("10.0.0.1") and numeric keys (6).
func decodeKey(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("bucket without key")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid bucket key %s: %w", raw, err)
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}
