package query

import (
	"context"
	"errors"
	"testing"

	"FlowRadar/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []model.FlowRecord {
	return []model.FlowRecord{
		{SrcAddr: "10.0.0.1", DstAddr: "10.0.1.1", DstPort: 443, Protocol: 6, Bytes: 1000, Packets: 10, StartMillis: 100},
		{SrcAddr: "10.0.0.1", DstAddr: "10.0.1.2", DstPort: 443, Protocol: 6, Bytes: 3000, Packets: 20, StartMillis: 200},
		{SrcAddr: "10.0.0.2", DstAddr: "10.0.1.1", DstPort: 53, Protocol: 17, Bytes: 4000, Packets: 5, StartMillis: 300},
		{SrcAddr: "10.0.0.3", DstAddr: "10.0.1.3", DstPort: 22, Protocol: 6, Bytes: 500, Packets: 1, StartMillis: 5000},
	}
}

func TestMemorySearcher_MetricsWithinRange(t *testing.T) {
	s := NewMemorySearcher(sampleRecords()...)

	res, err := s.Search(context.Background(), &model.SearchRequest{
		Filters: []model.Range{model.Between(model.FieldStartTime, 0, 1000)},
		Metrics: []model.Metric{
			{Name: "bytes", Kind: model.MetricSum, Field: model.FieldBytes},
			{Name: "avg", Kind: model.MetricAvg, Field: model.FieldBytes},
			{Name: "flows", Kind: model.MetricValueCount, Field: model.FieldSrcAddr},
			{Name: "dsts", Kind: model.MetricCardinality, Field: model.FieldDstAddr},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 8000.0, res.Metrics["bytes"])
	assert.InDelta(t, 8000.0/3, res.Metrics["avg"], 1e-9)
	assert.Equal(t, 3.0, res.Metrics["flows"])
	assert.Equal(t, 2.0, res.Metrics["dsts"])
	assert.Empty(t, res.Hits)
}

func TestMemorySearcher_EmptyAverageIsZero(t *testing.T) {
	s := NewMemorySearcher()

	res, err := s.Search(context.Background(), &model.SearchRequest{
		Metrics: []model.Metric{{Name: "avg", Kind: model.MetricAvg, Field: model.FieldBytes}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Metrics["avg"])
}

func TestMemorySearcher_TermsOrderedByMetric(t *testing.T) {
	s := NewMemorySearcher(sampleRecords()...)

	res, err := s.Search(context.Background(), &model.SearchRequest{
		Terms: &model.Terms{
			Name: "src", Field: model.FieldSrcAddr, Size: 2, OrderBy: "bytes",
			Metrics: []model.Metric{{Name: "bytes", Kind: model.MetricSum, Field: model.FieldBytes}},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Buckets, 2)

	assert.Equal(t, "10.0.0.1", res.Buckets[0].Key)
	assert.EqualValues(t, 2, res.Buckets[0].DocCount)
	assert.Equal(t, 4000.0, res.Buckets[0].Metrics["bytes"])
	assert.Equal(t, "10.0.0.2", res.Buckets[1].Key)
}

func TestMemorySearcher_TermsTieBreakByKey(t *testing.T) {
	s := NewMemorySearcher(
		model.FlowRecord{SrcAddr: "b", Bytes: 10},
		model.FlowRecord{SrcAddr: "a", Bytes: 10},
		model.FlowRecord{SrcAddr: "c", Bytes: 10},
	)

	res, err := s.Search(context.Background(), &model.SearchRequest{
		Terms: &model.Terms{Name: "src", Field: model.FieldSrcAddr, Size: 10},
	})
	require.NoError(t, err)
	require.Len(t, res.Buckets, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{res.Buckets[0].Key, res.Buckets[1].Key, res.Buckets[2].Key})
}

func TestMemorySearcher_TermsMinDocCountAndNumericKeys(t *testing.T) {
	s := NewMemorySearcher(sampleRecords()...)

	res, err := s.Search(context.Background(), &model.SearchRequest{
		Terms: &model.Terms{Name: "proto", Field: model.FieldProtocol, Size: 10, MinDocCount: 2},
	})
	require.NoError(t, err)
	require.Len(t, res.Buckets, 1)
	assert.Equal(t, "6", res.Buckets[0].Key)
	assert.EqualValues(t, 3, res.Buckets[0].DocCount)
}

func TestMemorySearcher_HitsSortedAndLimited(t *testing.T) {
	s := NewMemorySearcher(sampleRecords()...)

	res, err := s.Search(context.Background(), &model.SearchRequest{
		Filters: []model.Range{model.AtLeast(model.FieldBytes, 1000)},
		Sort:    []model.Sort{{Field: model.FieldBytes, Desc: true}},
		Size:    2,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.EqualValues(t, 4000, res.Hits[0].Bytes)
	assert.EqualValues(t, 3000, res.Hits[1].Bytes)
}

func TestMemorySearcher_HitsTieBreakOnAddresses(t *testing.T) {
	s := NewMemorySearcher(
		model.FlowRecord{SrcAddr: "10.0.0.9", DstAddr: "10.0.1.1", Bytes: 500, StartMillis: 1},
		model.FlowRecord{SrcAddr: "10.0.0.2", DstAddr: "10.0.1.2", Bytes: 500, StartMillis: 1},
		model.FlowRecord{SrcAddr: "10.0.0.2", DstAddr: "10.0.1.1", Bytes: 500, StartMillis: 1},
	)

	res, err := s.Search(context.Background(), &model.SearchRequest{
		Sort: []model.Sort{
			{Field: model.FieldBytes, Desc: true},
			{Field: model.FieldSrcAddr},
			{Field: model.FieldDstAddr},
		},
		Size: 2,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "10.0.0.2", res.Hits[0].SrcAddr)
	assert.Equal(t, "10.0.1.1", res.Hits[0].DstAddr)
	assert.Equal(t, "10.0.1.2", res.Hits[1].DstAddr)

	_, err = s.Search(context.Background(), &model.SearchRequest{
		Sort: []model.Sort{{Field: "L7_PROTO"}},
	})
	assert.Error(t, err)
}

func TestMemorySearcher_Errors(t *testing.T) {
	s := NewMemorySearcher(sampleRecords()...)

	_, err := s.Search(context.Background(), &model.SearchRequest{
		Filters: []model.Range{model.AtLeast(model.FieldSrcAddr, 1)},
	})
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "memory", qe.Backend)

	_, err = s.Search(context.Background(), &model.SearchRequest{
		Terms: &model.Terms{Name: "src", Field: model.FieldSrcAddr, OrderBy: "missing"},
	})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Search(ctx, &model.SearchRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemorySearcher_Write(t *testing.T) {
	s := NewMemorySearcher()
	require.NoError(t, s.Write(context.Background(), sampleRecords()))
	assert.Equal(t, 4, s.Len())
}
