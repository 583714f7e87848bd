package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"FlowRadar/internal/ai"
	"FlowRadar/internal/config"
	"FlowRadar/internal/engine/flowbuilder"
	"FlowRadar/internal/index"
	"FlowRadar/internal/model"
	"FlowRadar/internal/pkg/logging"
	"FlowRadar/internal/query"
	"FlowRadar/internal/report"
	"FlowRadar/internal/transport"
	_ "FlowRadar/internal/transport/kafka"
	_ "FlowRadar/internal/transport/nats"
	"FlowRadar/pkg/pcap"

	log "github.com/sirupsen/logrus"
)

// exitPartial is the exit status when the report was printed but some sections failed.
const exitPartial = 2

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	windowFlag := flag.String("window", "", "Report window ending now, e.g. 1h (default from config)")
	startFlag := flag.String("start", "", "Window start in RFC3339 (requires -end)")
	endFlag := flag.String("end", "", "Window end in RFC3339 (requires -start)")
	indexFlag := flag.String("index", "", "Comma separated indices to search instead of the resolved ones")
	pcapFlag := flag.String("pcap", "", "Report over flows built from this capture instead of the index")
	idleTimeout := flag.Duration("idle-timeout", 0, "Flow idle timeout when building flows from -pcap")
	parallel := flag.Bool("parallel", false, "Run sections 2-7 concurrently")
	publish := flag.Bool("publish", false, "Publish the report with the configured transport")
	jsonOut := flag.Bool("json", false, "Print the report as JSON")
	analyze := flag.Bool("analyze", false, "Append an AI assessment of the anomalies")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	if *parallel {
		cfg.Report.Parallel = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		searcher model.Searcher
		window   model.TimeWindow
		windowOK bool
	)
	if *pcapFlag != "" {
		store, span, err := loadCapture(*pcapFlag, *idleTimeout)
		if err != nil {
			log.Fatalf("Failed to load capture: %v", err)
		}
		searcher, window, windowOK = store, span, true
	} else {
		s, err := query.NewSearcher(cfg)
		if err != nil {
			log.Fatalf("Failed to create searcher: %v", err)
		}
		if c, ok := s.(io.Closer); ok {
			defer c.Close()
		}
		searcher = s
	}

	if *startFlag != "" || *endFlag != "" || *windowFlag != "" || !windowOK {
		window, err = resolveWindow(cfg, *windowFlag, *startFlag, *endFlag, time.Now())
		if err != nil {
			log.Fatalf("Invalid report window: %v", err)
		}
	}

	resolver, err := index.NewResolver(cfg.Index)
	if err != nil {
		log.Fatalf("Failed to create index resolver: %v", err)
	}
	engine := report.NewEngine(searcher, resolver, report.OptionsFromConfig(cfg.Report))

	var rep *report.Report
	if *indexFlag != "" {
		rep, err = engine.GenerateForIndices(ctx, window, strings.Split(*indexFlag, ","))
	} else {
		rep, err = engine.Generate(ctx, window)
	}
	if err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}

	loc, _ := time.LoadLocation(cfg.Report.Timezone)
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(rep)
	} else {
		err = report.TextRenderer{Location: loc}.Render(os.Stdout, rep)
	}
	if err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}

	if *publish {
		publishReport(cfg.Publish, rep)
	}
	if *analyze && rep.HasAnomalies() {
		if err := streamAnalysis(ctx, cfg.AI, report.AnomalyMarkdown(rep, loc)); err != nil {
			log.Errorf("AI analysis failed: %v", err)
		}
	}

	if rep.Err() != nil {
		os.Exit(exitPartial)
	}
}

// resolveWindow picks the report window from flags, falling back to the configured length.
func resolveWindow(cfg *config.Config, window, start, end string, now time.Time) (model.TimeWindow, error) {
	if start != "" || end != "" {
		if start == "" || end == "" {
			return model.TimeWindow{}, fmt.Errorf("-start and -end must be given together")
		}
		s, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return model.TimeWindow{}, fmt.Errorf("invalid -start: %w", err)
		}
		e, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return model.TimeWindow{}, fmt.Errorf("invalid -end: %w", err)
		}
		w := model.NewTimeWindow(s, e)
		return w, w.Validate()
	}

	d, err := cfg.ReportWindow()
	if err != nil {
		return model.TimeWindow{}, err
	}
	if window != "" {
		if d, err = time.ParseDuration(window); err != nil {
			return model.TimeWindow{}, fmt.Errorf("invalid -window: %w", err)
		}
	}
	w := model.LastWindow(now, d)
	return w, w.Validate()
}

// loadCapture builds flow records from a pcap file and returns them in a memory
// searcher along with the window covering every flow.
func loadCapture(path string, idleTimeout time.Duration) (*query.MemorySearcher, model.TimeWindow, error) {
	reader, err := pcap.NewReader(path)
	if err != nil {
		return nil, model.TimeWindow{}, err
	}
	defer reader.Close()

	packets, err := reader.ReadAll()
	if err != nil {
		return nil, model.TimeWindow{}, err
	}
	records, err := flowbuilder.Build(packets, idleTimeout)
	if err != nil {
		return nil, model.TimeWindow{}, err
	}
	if len(records) == 0 {
		return nil, model.TimeWindow{}, fmt.Errorf("no IPv4 flows in %s", path)
	}
	log.WithFields(log.Fields{"packets": len(packets), "flows": len(records)}).Info("Built flows from capture")

	window := model.TimeWindow{Start: records[0].StartMillis, End: records[0].StartMillis + 1}
	for _, r := range records {
		if r.StartMillis >= window.End {
			window.End = r.StartMillis + 1
		}
	}
	return query.NewMemorySearcher(records...), window, nil
}

func publishReport(cfg config.PublishConfig, rep *report.Report) {
	t, err := transport.Open(cfg)
	if err != nil {
		log.Errorf("Failed to open %s transport: %v", cfg.Driver, err)
		return
	}
	defer t.Close()
	if err := transport.Publish(t, rep, cfg.Format); err != nil {
		log.Errorf("Failed to publish report: %v", err)
		return
	}
	log.WithField("driver", t.Name()).Info("Report published")
}

func streamAnalysis(ctx context.Context, cfg config.AIConfig, summary string) error {
	analyzer, err := ai.NewReportAnalyzer(cfg)
	if err != nil {
		return err
	}
	fmt.Println("\n=== AI-Powered Analysis ===")
	defer fmt.Println()
	return analyzer.AnalyzeStream(ctx, summary, func(chunk string) error {
		_, err := fmt.Print(chunk)
		return err
	})
}
