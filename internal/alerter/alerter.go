package alerter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FlowRadar/internal/config"
	"FlowRadar/internal/metrics"
	"FlowRadar/internal/model"
	"FlowRadar/internal/report"
	"FlowRadar/internal/transport"

	"github.com/gomarkdown/markdown"
	log "github.com/sirupsen/logrus"
)

// Generator produces a report for a window.
type Generator interface {
	Generate(ctx context.Context, window model.TimeWindow) (*report.Report, error)
}

// Deps are the optional collaborators of the alerter. Nil members are skipped.
type Deps struct {
	Notifier      model.Notifier
	Analyzer      model.Analyzer
	Publisher     model.Publisher
	PublishFormat string
	Location      *time.Location
	// OnReport is called with every successfully generated report.
	OnReport func(*report.Report)
}

// Alerter periodically reports on the trailing window, publishes the result and
// notifies when a detector fired.
type Alerter struct {
	generator     Generator
	deps          Deps
	window        time.Duration
	checkInterval time.Duration
	aiTimeout     time.Duration

	latest   atomic.Pointer[report.Report]
	stopChan chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewAlerter creates a new Alerter instance.
func NewAlerter(cfg config.AlerterConfig, window time.Duration, generator Generator, deps Deps) (*Alerter, error) {
	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid check_interval for alerter: %w", err)
	}
	if interval <= 0 || window <= 0 {
		return nil, fmt.Errorf("alerter interval and window must be positive")
	}

	aiTimeout := 60 * time.Second
	if cfg.AIAnalysis.Timeout != "" {
		if aiTimeout, err = time.ParseDuration(cfg.AIAnalysis.Timeout); err != nil {
			return nil, fmt.Errorf("invalid ai_analysis timeout: %w", err)
		}
	}
	if !cfg.AIAnalysis.Enabled {
		deps.Analyzer = nil
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}

	return &Alerter{
		generator:     generator,
		deps:          deps,
		window:        window,
		checkInterval: interval,
		aiTimeout:     aiTimeout,
		stopChan:      make(chan struct{}),
		now:           time.Now,
	}, nil
}

// Latest returns the most recent report, or nil before the first run completed.
func (a *Alerter) Latest() *report.Report {
	return a.latest.Load()
}

// Start runs one check immediately and then one per interval until Stop.
func (a *Alerter) Start() {
	log.WithFields(log.Fields{"interval": a.checkInterval, "window": a.window}).Info("Alerter started")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-a.stopChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		ticker := time.NewTicker(a.checkInterval)
		defer ticker.Stop()

		for {
			if _, err := a.RunOnce(ctx); err != nil {
				log.WithError(err).Error("Alerter check failed")
			}
			select {
			case <-ticker.C:
			case <-a.stopChan:
				return
			}
		}
	}()
}

// Stop gracefully stops the evaluation loop.
func (a *Alerter) Stop() {
	log.Info("Stopping Alerter...")
	close(a.stopChan)
	a.wg.Wait()
}

// RunOnce generates the report for the trailing window and delivers it.
func (a *Alerter) RunOnce(ctx context.Context) (*report.Report, error) {
	window := model.LastWindow(a.now(), a.window)
	rep, err := a.generator.Generate(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to generate report: %w", err)
	}

	a.latest.Store(rep)
	recordMetrics(rep)
	if a.deps.OnReport != nil {
		a.deps.OnReport(rep)
	}

	logger := log.WithFields(log.Fields{
		"anomalies":       rep.AnomalyCount(),
		"failed_sections": len(rep.Failures),
	})
	logger.Info("Alerter check completed")

	if a.deps.Publisher != nil {
		if err := transport.Publish(a.deps.Publisher, rep, a.deps.PublishFormat); err != nil {
			logger.WithError(err).Error("Failed to publish report")
		}
	}

	if rep.HasAnomalies() {
		a.notify(ctx, rep)
	}
	return rep, nil
}

func recordMetrics(rep *report.Report) {
	metrics.Anomalies.WithLabelValues("high_volume_flows").Set(float64(len(rep.HighVolumeFlows)))
	metrics.Anomalies.WithLabelValues("high_connection_sources").Set(float64(len(rep.HighConnectionSources)))
	metrics.Anomalies.WithLabelValues("scan_sources").Set(float64(len(rep.ScanSources)))
	if rep.Overview != nil {
		metrics.WindowBytes.Set(float64(rep.Overview.TotalBytes))
	}
}

// notify sends the consolidated anomaly summary, with the AI assessment appended when enabled.
func (a *Alerter) notify(ctx context.Context, rep *report.Report) {
	if a.deps.Notifier == nil {
		return
	}

	summary := report.AnomalyMarkdown(rep, a.deps.Location)
	body := "<h1>FlowRadar Anomaly Summary</h1>" +
		"<p>The following anomalies were found during the last check:</p><hr>" +
		string(markdown.ToHTML([]byte(summary), nil, nil))

	analysis, err := a.analyze(ctx, summary)
	if err != nil {
		log.WithError(err).Error("Failed to get AI analysis")
	} else if analysis != "" {
		body += "<hr><h2>AI-Powered Analysis</h2>" + string(markdown.ToHTML([]byte(analysis), nil, nil))
	}

	subject := fmt.Sprintf("FlowRadar Anomaly Summary (%d Found)", rep.AnomalyCount())
	if err := a.deps.Notifier.Send(subject, body); err != nil {
		log.WithError(err).Error("Failed to send anomaly notification")
		return
	}
	log.Info("Anomaly notification sent successfully.")
}

func (a *Alerter) analyze(ctx context.Context, summary string) (string, error) {
	if a.deps.Analyzer == nil {
		return "", nil
	}
	log.Debug("Requesting AI analysis for anomaly summary...")
	ctx, cancel := context.WithTimeout(ctx, a.aiTimeout)
	defer cancel()
	return a.deps.Analyzer.AnalyzeTraffic(ctx, summary)
}
