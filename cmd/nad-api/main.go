package main

import (
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FlowRadar/internal/ai"
	"FlowRadar/internal/alerter"
	"FlowRadar/internal/config"
	"FlowRadar/internal/index"
	"FlowRadar/internal/notification"
	"FlowRadar/internal/pkg/logging"
	"FlowRadar/internal/query"
	"FlowRadar/internal/report"
	"FlowRadar/internal/transport"
	_ "FlowRadar/internal/transport/kafka"
	_ "FlowRadar/internal/transport/nats"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// reportService is the gRPC health service name tracking report completeness.
const reportService = "flowradar.Report"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	searcher, err := query.NewSearcher(cfg)
	if err != nil {
		log.Fatalf("Failed to create searcher: %v", err)
	}
	if c, ok := searcher.(io.Closer); ok {
		defer c.Close()
	}
	resolver, err := index.NewResolver(cfg.Index)
	if err != nil {
		log.Fatalf("Failed to create index resolver: %v", err)
	}
	engine := report.NewEngine(searcher, resolver, report.OptionsFromConfig(cfg.Report))

	window, err := cfg.ReportWindow()
	if err != nil {
		log.Fatalf("Invalid report window: %v", err)
	}
	loc, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		log.Fatalf("Invalid report timezone: %v", err)
	}

	healthServer := health.NewServer()
	healthServer.SetServingStatus(reportService, healthpb.HealthCheckResponse_UNKNOWN)

	apiHandler := &APIHandler{
		generator:     engine,
		defaultWindow: window,
		renderer:      report.TextRenderer{Location: loc},
		now:           time.Now,
	}

	var a *alerter.Alerter
	if cfg.Alerter.Enabled {
		deps := alerter.Deps{
			Location: loc,
			OnReport: func(rep *report.Report) {
				healthServer.SetServingStatus(reportService, reportStatus(rep))
			},
		}
		if cfg.SMTP.Host != "" {
			if deps.Notifier, err = notification.NewEmailNotifier(cfg.SMTP); err != nil {
				log.Fatalf("Failed to create email notifier: %v", err)
			}
		}
		if cfg.Alerter.AIAnalysis.Enabled {
			if deps.Analyzer, err = ai.NewReportAnalyzer(cfg.AI); err != nil {
				log.Fatalf("Failed to create AI analyzer: %v", err)
			}
		}
		if cfg.Publish.Enabled {
			t, err := transport.Open(cfg.Publish)
			if err != nil {
				log.Fatalf("Failed to open %s transport: %v", cfg.Publish.Driver, err)
			}
			defer t.Close()
			deps.Publisher, deps.PublishFormat = t, cfg.Publish.Format
		}

		a, err = alerter.NewAlerter(cfg.Alerter, window, engine, deps)
		if err != nil {
			log.Fatalf("Failed to create alerter: %v", err)
		}
		apiHandler.latest = a.Latest
		a.Start()
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	lis, err := net.Listen("tcp", cfg.API.GRPCListenAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.API.GRPCListenAddr, err)
	}
	go func() {
		log.Infof("gRPC health server starting on %s", cfg.API.GRPCListenAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("gRPC server failed: %v", err)
		}
	}()

	server := &http.Server{
		Addr:              cfg.API.HTTPListenAddr,
		Handler:           newRouter(apiHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("API server shutting down...")

	healthServer.Shutdown()
	if a != nil {
		a.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	grpcServer.GracefulStop()
	log.Info("API server exited.")
}

// reportStatus maps a report onto a health status: a report with failed
// sections means the index is not fully answering.
func reportStatus(rep *report.Report) healthpb.HealthCheckResponse_ServingStatus {
	if rep.Err() != nil {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
