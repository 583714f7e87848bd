package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"FlowRadar/internal/config"
	"FlowRadar/internal/engine/flowbuilder"
	"FlowRadar/internal/model"
	"FlowRadar/internal/pkg/logging"
	"FlowRadar/internal/query"
	"FlowRadar/pkg/pcap"

	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	pcapPath := flag.String("pcap", "", "Capture to import (required)")
	idleTimeout := flag.Duration("idle-timeout", 0, "Flow idle timeout; 0 keeps one flow per 5-tuple")
	batchSize := flag.Int("batch", 10000, "Flow records per insert batch")
	flag.Parse()

	if *pcapPath == "" || *batchSize <= 0 {
		flag.Usage()
		log.Fatal("-pcap is required and -batch must be positive")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader, err := pcap.NewReader(*pcapPath)
	if err != nil {
		log.Fatalf("Failed to open capture: %v", err)
	}
	packets, err := reader.ReadAll()
	reader.Close()
	if err != nil {
		log.Fatalf("Failed to read capture: %v", err)
	}
	records, err := flowbuilder.Build(packets, *idleTimeout)
	if err != nil {
		log.Fatalf("Failed to build flows: %v", err)
	}

	store, err := query.NewClickHouseSearcher(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to create ClickHouse store: %v", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to prepare schema: %v", err)
	}

	start := time.Now()
	if err := writeBatches(ctx, store, records, *batchSize); err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	log.WithFields(log.Fields{
		"packets": len(packets),
		"flows":   len(records),
		"took":    time.Since(start),
	}).Info("Import completed")
}

// writeBatches writes records in chunks of at most size.
func writeBatches(ctx context.Context, w model.Writer, records []model.FlowRecord, size int) error {
	for len(records) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(size, len(records))
		if err := w.Write(ctx, records[:n]); err != nil {
			return err
		}
		records = records[n:]
	}
	return nil
}
