package query

import (
	"testing"

	"FlowRadar/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMetricsSQL(t *testing.T) {
	query, args, err := buildMetricsSQL("flow_records", &model.SearchRequest{
		Filters: []model.Range{model.Between(model.FieldStartTime, 10, 20)},
		Metrics: []model.Metric{
			{Name: "total_bytes", Kind: model.MetricSum, Field: model.FieldBytes},
			{Name: "total_flows", Kind: model.MetricValueCount, Field: model.FieldSrcAddr},
		},
	})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT toFloat64(sum(IN_BYTES)) AS total_bytes, toFloat64(count(IPV4_SRC_ADDR)) AS total_flows"+
			" FROM flow_records WHERE FLOW_START_MILLISECONDS >= ? AND FLOW_START_MILLISECONDS <= ?",
		query)
	assert.Equal(t, []any{int64(10), int64(20)}, args)
}

func TestBuildTermsSQL(t *testing.T) {
	query, args, err := buildTermsSQL("flow_records", &model.SearchRequest{
		Filters: []model.Range{model.Between(model.FieldStartTime, 10, 20)},
		Terms: &model.Terms{
			Name: "src_ips", Field: model.FieldSrcAddr, Size: 100, MinDocCount: 1000,
			Metrics: []model.Metric{
				{Name: "unique_destinations", Kind: model.MetricCardinality, Field: model.FieldDstAddr},
				{Name: "avg_bytes_per_flow", Kind: model.MetricAvg, Field: model.FieldBytes},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT toString(IPV4_SRC_ADDR) AS bucket_key, count() AS doc_count"+
			", toFloat64(uniqExact(IPV4_DST_ADDR)) AS unique_destinations"+
			", toFloat64(ifNotFinite(avg(IN_BYTES), 0)) AS avg_bytes_per_flow"+
			" FROM flow_records WHERE FLOW_START_MILLISECONDS >= ? AND FLOW_START_MILLISECONDS <= ?"+
			" GROUP BY bucket_key HAVING doc_count >= ? ORDER BY doc_count DESC, bucket_key ASC LIMIT ?",
		query)
	assert.Equal(t, []any{int64(10), int64(20), int64(1000), 100}, args)
}

func TestBuildTermsSQL_OrderByMetric(t *testing.T) {
	query, _, err := buildTermsSQL("flows", &model.SearchRequest{
		Terms: &model.Terms{
			Name: "top", Field: model.FieldDstAddr, OrderBy: "total_bytes",
			Metrics: []model.Metric{{Name: "total_bytes", Kind: model.MetricSum, Field: model.FieldBytes}},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, query, "ORDER BY total_bytes DESC, bucket_key ASC")

	_, _, err = buildTermsSQL("flows", &model.SearchRequest{
		Terms: &model.Terms{Name: "top", Field: model.FieldDstAddr, OrderBy: "nope"},
	})
	assert.Error(t, err)
}

func TestBuildHitsSQL(t *testing.T) {
	query, args, err := buildHitsSQL("flow_records", &model.SearchRequest{
		Filters: []model.Range{model.AtLeast(model.FieldBytes, 104857600)},
		Sort:    []model.Sort{{Field: model.FieldBytes, Desc: true}},
		Size:    20,
	})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT IPV4_SRC_ADDR, IPV4_DST_ADDR, L4_DST_PORT, PROTOCOL, IN_BYTES, IN_PKTS, FLOW_START_MILLISECONDS"+
			" FROM flow_records WHERE IN_BYTES >= ? ORDER BY IN_BYTES DESC LIMIT ?",
		query)
	assert.Equal(t, []any{int64(104857600), 20}, args)
}

func TestBuildHitsSQL_CompoundOrder(t *testing.T) {
	query, _, err := buildHitsSQL("flow_records", &model.SearchRequest{
		Sort: []model.Sort{
			{Field: model.FieldBytes, Desc: true},
			{Field: model.FieldStartTime},
			{Field: model.FieldSrcAddr},
			{Field: model.FieldDstAddr},
		},
		Size: 20,
	})
	require.NoError(t, err)
	assert.Contains(t, query, " ORDER BY IN_BYTES DESC, FLOW_START_MILLISECONDS ASC, IPV4_SRC_ADDR ASC, IPV4_DST_ADDR ASC LIMIT ?")
}

func TestClickHouseSQL_RejectsUnknownIdentifiers(t *testing.T) {
	_, _, err := buildWhere([]model.Range{model.AtLeast("1=1; DROP TABLE x", 0)})
	assert.Error(t, err)

	_, err = metricExpr(model.Metric{Name: "x; --", Kind: model.MetricSum, Field: model.FieldBytes})
	assert.Error(t, err)

	_, err = metricExpr(model.Metric{Name: "ok", Kind: "median", Field: model.FieldBytes})
	assert.Error(t, err)

	assert.True(t, isIdentifier("db.flow_records"))
	assert.False(t, isIdentifier("1table"))
	assert.False(t, isIdentifier(""))
}
