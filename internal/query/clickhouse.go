package query

import (
	"context"
	"fmt"
	"strings"

	"FlowRadar/internal/config"
	"FlowRadar/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"
)

const createFlowTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    IPV4_SRC_ADDR           String,
    IPV4_DST_ADDR           String,
    L4_DST_PORT             UInt16,
    PROTOCOL                UInt8,
    IN_BYTES                UInt64,
    IN_PKTS                 UInt64,
    FLOW_START_MILLISECONDS Int64
) ENGINE = MergeTree()
PARTITION BY toYYYYMMDD(fromUnixTimestamp64Milli(FLOW_START_MILLISECONDS))
ORDER BY (FLOW_START_MILLISECONDS, IPV4_SRC_ADDR);
`

// ClickHouseSearcher answers search requests from a ClickHouse flow table and can
// load flow records into it. Day partitioning is handled by the table, so index
// names in a request are ignored and the time filter selects the partitions.
type ClickHouseSearcher struct {
	conn  driver.Conn
	table string
}

// NewClickHouseSearcher creates a new searcher for ClickHouse.
func NewClickHouseSearcher(cfg config.ClickHouseConfig) (*ClickHouseSearcher, error) {
	if !isIdentifier(cfg.Table) {
		return nil, fmt.Errorf("invalid clickhouse table name: %q", cfg.Table)
	}
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	log.WithField("table", cfg.Table).Info("Successfully connected to ClickHouse")
	return &ClickHouseSearcher{conn: conn, table: cfg.Table}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// EnsureSchema creates the flow table when it does not exist.
func (s *ClickHouseSearcher) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf(createFlowTableStatement, s.table)); err != nil {
		return fmt.Errorf("failed to create %s table: %w", s.table, err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *ClickHouseSearcher) Close() error {
	return s.conn.Close()
}

// Write implements model.Writer with a single batch insert.
func (s *ClickHouseSearcher) Write(ctx context.Context, records []model.FlowRecord) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, r := range records {
		if err := batch.Append(r.SrcAddr, r.DstAddr, r.DstPort, r.Protocol, r.Bytes, r.Packets, r.StartMillis); err != nil {
			return fmt.Errorf("failed to append flow record to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	log.WithField("records", len(records)).Debug("Wrote flow records to ClickHouse")
	return nil
}

// Search implements model.Searcher. Hits, top-level metrics and terms buckets are
// each answered by their own statement.
func (s *ClickHouseSearcher) Search(ctx context.Context, req *model.SearchRequest) (*model.SearchResult, error) {
	result := &model.SearchResult{}

	if len(req.Metrics) > 0 {
		metrics, err := s.queryMetrics(ctx, req)
		if err != nil {
			return nil, &QueryError{Backend: "clickhouse", Err: err}
		}
		result.Metrics = metrics
	}
	if req.Terms != nil {
		buckets, err := s.queryTerms(ctx, req)
		if err != nil {
			return nil, &QueryError{Backend: "clickhouse", Err: err}
		}
		result.Buckets = buckets
	}
	if req.Size > 0 {
		hits, err := s.queryHits(ctx, req)
		if err != nil {
			return nil, &QueryError{Backend: "clickhouse", Err: err}
		}
		result.Hits = hits
	}
	return result, nil
}

func (s *ClickHouseSearcher) queryMetrics(ctx context.Context, req *model.SearchRequest) (map[string]float64, error) {
	query, args, err := buildMetricsSQL(s.table, req)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(req.Metrics))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := s.conn.QueryRow(ctx, query, args...).Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan metrics result: %w", err)
	}

	out := make(map[string]float64, len(values))
	for i, m := range req.Metrics {
		out[m.Name] = values[i]
	}
	return out, nil
}

func (s *ClickHouseSearcher) queryTerms(ctx context.Context, req *model.SearchRequest) ([]model.Bucket, error) {
	query, args, err := buildTermsSQL(s.table, req)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	metrics := req.Terms.Metrics
	var buckets []model.Bucket
	for rows.Next() {
		var (
			key      string
			docCount uint64
		)
		values := make([]float64, len(metrics))
		dest := []any{&key, &docCount}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan terms bucket: %w", err)
		}
		bucket := model.Bucket{Key: key, DocCount: int64(docCount), Metrics: make(map[string]float64, len(metrics))}
		for i, m := range metrics {
			bucket.Metrics[m.Name] = values[i]
		}
		buckets = append(buckets, bucket)
	}
	return buckets, rows.Err()
}

func (s *ClickHouseSearcher) queryHits(ctx context.Context, req *model.SearchRequest) ([]model.FlowRecord, error) {
	query, args, err := buildHitsSQL(s.table, req)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var hits []model.FlowRecord
	for rows.Next() {
		var r model.FlowRecord
		if err := rows.Scan(&r.SrcAddr, &r.DstAddr, &r.DstPort, &r.Protocol, &r.Bytes, &r.Packets, &r.StartMillis); err != nil {
			return nil, fmt.Errorf("failed to scan flow record: %w", err)
		}
		hits = append(hits, r)
	}
	return hits, rows.Err()
}

// buildWhere renders range filters as a WHERE clause with positional args.
func buildWhere(filters []model.Range) (string, []any, error) {
	var whereClauses []string
	args := []any{}
	for _, f := range filters {
		if !isFlowField(f.Field) {
			return "", nil, fmt.Errorf("unsupported filter field: %s", f.Field)
		}
		if f.Gte != nil {
			whereClauses = append(whereClauses, f.Field+" >= ?")
			args = append(args, *f.Gte)
		}
		if f.Lte != nil {
			whereClauses = append(whereClauses, f.Field+" <= ?")
			args = append(args, *f.Lte)
		}
	}
	if len(whereClauses) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(whereClauses, " AND "), args, nil
}

func metricExpr(m model.Metric) (string, error) {
	if !isFlowField(m.Field) {
		return "", fmt.Errorf("unsupported metric field: %s", m.Field)
	}
	if !isIdentifier(m.Name) {
		return "", fmt.Errorf("invalid metric name: %q", m.Name)
	}
	var expr string
	switch m.Kind {
	case model.MetricSum:
		expr = fmt.Sprintf("toFloat64(sum(%s))", m.Field)
	case model.MetricAvg:
		expr = fmt.Sprintf("toFloat64(ifNotFinite(avg(%s), 0))", m.Field)
	case model.MetricCardinality:
		expr = fmt.Sprintf("toFloat64(uniqExact(%s))", m.Field)
	case model.MetricValueCount:
		expr = fmt.Sprintf("toFloat64(count(%s))", m.Field)
	default:
		return "", fmt.Errorf("unsupported metric kind: %s", m.Kind)
	}
	return expr + " AS " + m.Name, nil
}

func buildMetricsSQL(table string, req *model.SearchRequest) (string, []any, error) {
	var selects []string
	for _, m := range req.Metrics {
		expr, err := metricExpr(m)
		if err != nil {
			return "", nil, err
		}
		selects = append(selects, expr)
	}
	where, args, err := buildWhere(req.Filters)
	if err != nil {
		return "", nil, err
	}
	return "SELECT " + strings.Join(selects, ", ") + " FROM " + table + where, args, nil
}

func buildTermsSQL(table string, req *model.SearchRequest) (string, []any, error) {
	t := req.Terms
	if !isFlowField(t.Field) {
		return "", nil, fmt.Errorf("unsupported terms field: %s", t.Field)
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString(fmt.Sprintf("SELECT toString(%s) AS bucket_key, count() AS doc_count", t.Field))

	orderKnown := t.OrderBy == ""
	for _, m := range t.Metrics {
		expr, err := metricExpr(m)
		if err != nil {
			return "", nil, err
		}
		queryBuilder.WriteString(", " + expr)
		if m.Name == t.OrderBy {
			orderKnown = true
		}
	}
	if !orderKnown {
		return "", nil, fmt.Errorf("terms %s orders by unknown metric %s", t.Name, t.OrderBy)
	}

	where, args, err := buildWhere(req.Filters)
	if err != nil {
		return "", nil, err
	}
	queryBuilder.WriteString(" FROM " + table + where)
	queryBuilder.WriteString(" GROUP BY bucket_key")

	minDocCount := t.MinDocCount
	if minDocCount < 1 {
		minDocCount = 1
	}
	queryBuilder.WriteString(" HAVING doc_count >= ?")
	args = append(args, minDocCount)

	order := "doc_count"
	if t.OrderBy != "" {
		order = t.OrderBy
	}
	queryBuilder.WriteString(fmt.Sprintf(" ORDER BY %s DESC, bucket_key ASC LIMIT ?", order))

	size := t.Size
	if size <= 0 {
		size = defaultTermsSize
	}
	args = append(args, size)

	return queryBuilder.String(), args, nil
}

func buildHitsSQL(table string, req *model.SearchRequest) (string, []any, error) {
	where, args, err := buildWhere(req.Filters)
	if err != nil {
		return "", nil, err
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT " + strings.Join(model.FlowFields, ", ") + " FROM " + table + where)

	if len(req.Sort) > 0 {
		var orders []string
		for _, s := range req.Sort {
			if !isFlowField(s.Field) {
				return "", nil, fmt.Errorf("unsupported sort field: %s", s.Field)
			}
			dir := "ASC"
			if s.Desc {
				dir = "DESC"
			}
			orders = append(orders, s.Field+" "+dir)
		}
		queryBuilder.WriteString(" ORDER BY " + strings.Join(orders, ", "))
	}
	queryBuilder.WriteString(" LIMIT ?")
	args = append(args, req.Size)

	return queryBuilder.String(), args, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		case c == '.' && i > 0:
		default:
			return false
		}
	}
	return true
}
