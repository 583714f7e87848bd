package report

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"FlowRadar/internal/config"
	"FlowRadar/internal/metrics"
	"FlowRadar/internal/model"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Aggregation names used in every request the engine issues.
const (
	aggTotalBytes   = "total_bytes"
	aggTotalPackets = "total_packets"
	aggTotalFlows   = "total_flows"
	aggUniqueDsts   = "unique_destinations"
	aggAvgBytes     = "avg_bytes_per_flow"
	aggTopIPs       = "top_ips"
	aggSrcIPs       = "src_ips"
	aggProtocols    = "protocols"
)

// IndexResolver selects the indices a window must be read from.
type IndexResolver interface {
	Resolve(w model.TimeWindow) []string
}

// Options tunes the engine.
type Options struct {
	Thresholds  config.Thresholds
	Limits      config.Limits
	Parallel    bool
	MaxParallel int
}

// DefaultOptions returns the stock policy, sequential execution.
func DefaultOptions() Options {
	return Options{
		Thresholds:  config.DefaultThresholds(),
		Limits:      config.DefaultLimits(),
		MaxParallel: 4,
	}
}

// OptionsFromConfig builds engine options from the report configuration.
func OptionsFromConfig(cfg config.ReportConfig) Options {
	return Options{
		Thresholds:  cfg.Thresholds,
		Limits:      cfg.Limits,
		Parallel:    cfg.Parallel,
		MaxParallel: cfg.MaxParallel,
	}
}

// Engine builds traffic reports from a flow index.
type Engine struct {
	searcher model.Searcher
	resolver IndexResolver
	opts     Options
	now      func() time.Time
}

// NewEngine creates a report engine.
func NewEngine(searcher model.Searcher, resolver IndexResolver, opts Options) *Engine {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	return &Engine{searcher: searcher, resolver: resolver, opts: opts, now: time.Now}
}

// Generate builds a report for the window over the indices the resolver selects.
func (e *Engine) Generate(ctx context.Context, window model.TimeWindow) (*Report, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	var indices []string
	if e.resolver != nil {
		indices = e.resolver.Resolve(window)
	}
	return e.GenerateForIndices(ctx, window, indices)
}

// GenerateForIndices builds a report for the window over explicit indices.
//
// The returned error is only for an invalid window. Query failures are recorded per
// section on the report and never stop the remaining sections.
func (e *Engine) GenerateForIndices(ctx context.Context, window model.TimeWindow, indices []string) (*Report, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	rep := &Report{
		GeneratedAt: e.now(),
		Window:      window,
		Indices:     indices,
		Thresholds:  e.opts.Thresholds,
		Limits:      e.opts.Limits,
	}
	run := &reportRun{engine: e, window: window, indices: indices, report: rep}

	logger := log.WithFields(log.Fields{"indices": indices, "window_start": window.Start, "window_end": window.End})
	logger.Debug("Generating traffic report")

	run.section(ctx, SectionOverview, run.overview)

	rest := []struct {
		section Section
		fn      func(context.Context) error
	}{
		{SectionTopSources, run.topSources},
		{SectionTopDestinations, run.topDestinations},
		{SectionHighVolume, run.highVolumeFlows},
		{SectionHighConnection, run.highConnectionSources},
		{SectionScan, run.scanSources},
		{SectionProtocols, run.protocols},
	}

	if e.opts.Parallel {
		var g errgroup.Group
		g.SetLimit(e.opts.MaxParallel)
		for _, s := range rest {
			g.Go(func() error {
				run.section(ctx, s.section, s.fn)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, s := range rest {
			run.section(ctx, s.section, s.fn)
		}
	}

	sort.Slice(rep.Failures, func(i, j int) bool {
		return rep.Failures[i].Section.order() < rep.Failures[j].Section.order()
	})

	outcome := "complete"
	if len(rep.Failures) > 0 {
		outcome = "partial"
		logger.WithField("failed_sections", len(rep.Failures)).Warn("Traffic report completed with failed sections")
	}
	metrics.ReportsGenerated.WithLabelValues(outcome).Inc()
	return rep, nil
}

// reportRun holds the state of one Generate call. Each section writes only its
// own report field; failures go through mu.
type reportRun struct {
	engine  *Engine
	window  model.TimeWindow
	indices []string
	report  *Report
	mu      sync.Mutex
}

// section runs fn inside its own fault boundary.
func (r *reportRun) section(ctx context.Context, s Section, fn func(context.Context) error) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				log.WithField("section", s).Errorf("panic in report section: %v\n%s", p, debug.Stack())
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return fn(ctx)
	}()
	metrics.ObserveSection(string(s), time.Since(start), err)

	if err == nil {
		return
	}
	log.WithField("section", s).WithError(err).Error("Report section failed")
	r.mu.Lock()
	r.report.Failures = append(r.report.Failures, &SectionError{Section: s, Err: err})
	r.mu.Unlock()
}

func (r *reportRun) windowFilter() model.Range {
	return model.Between(model.FieldStartTime, r.window.Start, r.window.End)
}

func (r *reportRun) search(ctx context.Context, req *model.SearchRequest) (*model.SearchResult, error) {
	req.Indices = r.indices
	if len(req.Filters) == 0 {
		req.Filters = []model.Range{r.windowFilter()}
	}
	return r.engine.searcher.Search(ctx, req)
}

func (r *reportRun) overview(ctx context.Context) error {
	res, err := r.search(ctx, &model.SearchRequest{
		Metrics: []model.Metric{
			{Name: aggTotalBytes, Kind: model.MetricSum, Field: model.FieldBytes},
			{Name: aggTotalPackets, Kind: model.MetricSum, Field: model.FieldPackets},
			{Name: aggTotalFlows, Kind: model.MetricValueCount, Field: model.FieldSrcAddr},
		},
	})
	if err != nil {
		return err
	}
	r.report.Overview = &Overview{
		TotalBytes:   toUint(res.Metrics[aggTotalBytes]),
		TotalPackets: toUint(res.Metrics[aggTotalPackets]),
		FlowCount:    toInt(res.Metrics[aggTotalFlows]),
	}
	return nil
}

func (r *reportRun) topSources(ctx context.Context) error {
	talkers, err := r.topTalkers(ctx, model.FieldSrcAddr)
	r.report.TopSources = talkers
	return err
}

func (r *reportRun) topDestinations(ctx context.Context) error {
	talkers, err := r.topTalkers(ctx, model.FieldDstAddr)
	r.report.TopDestinations = talkers
	return err
}

// topTalkers ranks addresses of field by summed bytes, ties broken by address.
func (r *reportRun) topTalkers(ctx context.Context, field string) ([]Talker, error) {
	res, err := r.search(ctx, &model.SearchRequest{
		Terms: &model.Terms{
			Name:    aggTopIPs,
			Field:   field,
			Size:    r.engine.opts.Limits.TopTalkers,
			OrderBy: aggTotalBytes,
			Metrics: []model.Metric{
				{Name: aggTotalBytes, Kind: model.MetricSum, Field: model.FieldBytes},
				{Name: aggTotalPackets, Kind: model.MetricSum, Field: model.FieldPackets},
				{Name: aggTotalFlows, Kind: model.MetricValueCount, Field: field},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	talkers := make([]Talker, 0, len(res.Buckets))
	for _, b := range res.Buckets {
		talkers = append(talkers, Talker{
			Addr:    b.Key,
			Bytes:   toUint(b.Metrics[aggTotalBytes]),
			Packets: toUint(b.Metrics[aggTotalPackets]),
			Flows:   toInt(b.Metrics[aggTotalFlows]),
		})
	}
	sort.SliceStable(talkers, func(i, j int) bool {
		if talkers[i].Bytes != talkers[j].Bytes {
			return talkers[i].Bytes > talkers[j].Bytes
		}
		return talkers[i].Addr < talkers[j].Addr
	})
	if limit := r.engine.opts.Limits.TopTalkers; len(talkers) > limit {
		talkers = talkers[:limit]
	}
	return talkers, nil
}

// highVolumeOrder ranks flows by bytes and breaks ties on start, source and
// destination so the backend cut at the limit is reproducible.
var highVolumeOrder = []model.Sort{
	{Field: model.FieldBytes, Desc: true},
	{Field: model.FieldStartTime},
	{Field: model.FieldSrcAddr},
	{Field: model.FieldDstAddr},
}

func (r *reportRun) highVolumeFlows(ctx context.Context) error {
	th := r.engine.opts.Thresholds
	res, err := r.search(ctx, &model.SearchRequest{
		Filters: []model.Range{
			r.windowFilter(),
			model.AtLeast(model.FieldBytes, int64(th.HighVolumeBytes)),
		},
		Sort:   highVolumeOrder,
		Size:   r.engine.opts.Limits.HighVolumeFlows,
		Fields: model.FlowFields,
	})
	if err != nil {
		return err
	}

	flows := make([]model.FlowRecord, 0, len(res.Hits))
	for _, h := range res.Hits {
		if h.Bytes >= th.HighVolumeBytes {
			flows = append(flows, h)
		}
	}
	sort.SliceStable(flows, func(i, j int) bool {
		a, b := flows[i], flows[j]
		if a.Bytes != b.Bytes {
			return a.Bytes > b.Bytes
		}
		if a.StartMillis != b.StartMillis {
			return a.StartMillis < b.StartMillis
		}
		if a.SrcAddr != b.SrcAddr {
			return a.SrcAddr < b.SrcAddr
		}
		return a.DstAddr < b.DstAddr
	})
	r.report.HighVolumeFlows = flows
	return nil
}

func (r *reportRun) highConnectionSources(ctx context.Context) error {
	th := r.engine.opts.Thresholds
	res, err := r.search(ctx, &model.SearchRequest{
		Terms: &model.Terms{
			Name:        aggSrcIPs,
			Field:       model.FieldSrcAddr,
			Size:        r.engine.opts.Limits.Candidates,
			MinDocCount: th.HighConnectionMinFlows,
			Metrics: []model.Metric{
				{Name: aggTotalBytes, Kind: model.MetricSum, Field: model.FieldBytes},
				{Name: aggUniqueDsts, Kind: model.MetricCardinality, Field: model.FieldDstAddr},
			},
		},
	})
	if err != nil {
		return err
	}

	sources := make([]ConnectionSource, 0, len(res.Buckets))
	for _, b := range res.Buckets {
		if b.DocCount < th.HighConnectionMinFlows {
			continue
		}
		sources = append(sources, ConnectionSource{
			Addr:         b.Key,
			Flows:        b.DocCount,
			Bytes:        toUint(b.Metrics[aggTotalBytes]),
			Destinations: toInt(b.Metrics[aggUniqueDsts]),
		})
	}
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].Flows != sources[j].Flows {
			return sources[i].Flows > sources[j].Flows
		}
		return sources[i].Addr < sources[j].Addr
	})
	r.report.HighConnectionSources = sources
	return nil
}

func (r *reportRun) scanSources(ctx context.Context) error {
	th := r.engine.opts.Thresholds
	res, err := r.search(ctx, &model.SearchRequest{
		Terms: &model.Terms{
			Name:        aggSrcIPs,
			Field:       model.FieldSrcAddr,
			Size:        r.engine.opts.Limits.Candidates,
			MinDocCount: th.ScanMinFlows,
			Metrics: []model.Metric{
				{Name: aggTotalBytes, Kind: model.MetricSum, Field: model.FieldBytes},
				{Name: aggUniqueDsts, Kind: model.MetricCardinality, Field: model.FieldDstAddr},
				{Name: aggAvgBytes, Kind: model.MetricAvg, Field: model.FieldBytes},
			},
		},
	})
	if err != nil {
		return err
	}

	sources := make([]ScanSource, 0)
	for _, b := range res.Buckets {
		candidate := ScanSource{
			Addr:         b.Key,
			Flows:        b.DocCount,
			Destinations: toInt(b.Metrics[aggUniqueDsts]),
			AvgBytes:     b.Metrics[aggAvgBytes],
			Bytes:        toUint(b.Metrics[aggTotalBytes]),
		}
		if b.DocCount >= th.ScanMinFlows && IsScan(candidate, th) {
			sources = append(sources, candidate)
		}
	}
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].Flows != sources[j].Flows {
			return sources[i].Flows > sources[j].Flows
		}
		return sources[i].Addr < sources[j].Addr
	})
	r.report.ScanSources = sources
	return nil
}

// IsScan applies the scan signature: small average flows AND strictly more
// destinations than the threshold.
func IsScan(s ScanSource, th config.Thresholds) bool {
	return s.AvgBytes < th.ScanMaxAvgBytes && s.Destinations > th.ScanDestinationsAbove
}

func (r *reportRun) protocols(ctx context.Context) error {
	overview := r.report.Overview
	if overview == nil {
		return ErrOverviewUnavailable
	}

	res, err := r.search(ctx, &model.SearchRequest{
		Terms: &model.Terms{
			Name:  aggProtocols,
			Field: model.FieldProtocol,
			Size:  r.engine.opts.Limits.Protocols,
			Metrics: []model.Metric{
				{Name: aggTotalBytes, Kind: model.MetricSum, Field: model.FieldBytes},
			},
		},
	})
	if err != nil {
		return err
	}
	r.report.Protocols = protocolShares(res.Buckets, overview)
	return nil
}

// protocolShares keeps percentages unrounded. While the returned buckets
// account for no more than the overview total, their shares summed in order
// never exceed 100.
func protocolShares(buckets []model.Bucket, overview *Overview) []ProtocolShare {
	shares := make([]ProtocolShare, 0, len(buckets))
	var covered uint64
	var sum float64
	for _, b := range buckets {
		bytes := toUint(b.Metrics[aggTotalBytes])
		pct := Percent(bytes, overview.TotalBytes)
		covered += bytes
		if covered <= overview.TotalBytes {
			for pct > 0 && sum+pct > 100 {
				pct = math.Nextafter(pct, 0)
			}
		}
		sum += pct
		shares = append(shares, ProtocolShare{
			Protocol: b.Key,
			Bytes:    bytes,
			Percent:  pct,
		})
	}
	return shares
}

// Percent returns part/total*100, or 0 when total is 0. Rounding is left to
// FormatPercent.
func Percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}

func toUint(v float64) uint64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return uint64(math.Round(v))
}

func toInt(v float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	return int64(math.Round(v))
}
