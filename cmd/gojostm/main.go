package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sushant-115/gojostm/config"
	"github.com/sushant-115/gojostm/core/kernels"
	"github.com/sushant-115/gojostm/internal/session"
	"github.com/sushant-115/gojostm/pkg/logger"
	"github.com/sushant-115/gojostm/pkg/telemetry"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to the YAML configuration file")
	kernel     = flag.String("kernel", "", fmt.Sprintf("Kernel to run, one of %v", kernels.Names()))
	threads    = flag.Int("threads", 0, "Worker threads (0 keeps the configured value)")
	iterations = flag.Uint64("n", 0, "Loop iterations (0 keeps the configured value)")
	chunk      = flag.Uint64("chunk", 0, "Iterations per transaction (0 keeps the configured value)")
	hashBits   = flag.Uint("hash_bits", 0, "Translation table key width (0 keeps the configured value)")
	prediction = flag.Bool("prediction", true, "Predict induction variables")
	sequential = flag.Bool("sequential", false, "Also run the loop sequentially and compare timings")
	jsonOut    = flag.Bool("json", false, "Print reports as JSON")
	metrics    = flag.Bool("metrics", false, "Enable telemetry and serve Prometheus metrics")
)

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return cfg, err
		}
	}
	// Flags given explicitly win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "kernel":
			cfg.Workload.Kernel = *kernel
		case "threads":
			cfg.STM.Threads = *threads
		case "n":
			cfg.Workload.Params.N = *iterations
		case "chunk":
			cfg.Workload.Params.Chunk = *chunk
		case "hash_bits":
			cfg.STM.HashBits = *hashBits
		case "prediction":
			cfg.STM.Prediction = *prediction
		case "metrics":
			cfg.Telemetry.Enabled = *metrics
		}
	})
	return cfg, cfg.Validate()
}

func printReport(rep session.Report) {
	if *jsonOut {
		data, _ := json.Marshal(rep)
		fmt.Println(string(data))
		return
	}
	fmt.Println(rep)
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gojostm: %v\n", err)
		os.Exit(2)
	}

	zlogger, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gojostm: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zlogger.Sync()

	tel, shutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		zlogger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			zlogger.Error("Failed to shutdown telemetry", zap.Error(err))
		}
	}()
	if tel.Addr != "" {
		zlogger.Info("Serving metrics", zap.String("addr", tel.Addr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := session.New(cfg, zlogger, tel.Tracer, tel.Meter)
	req := session.Request{Verify: cfg.Workload.Verify}

	rep, err := s.Run(ctx, req)
	if err != nil {
		zlogger.Error("Kernel run failed", zap.String("kernel", cfg.Workload.Kernel), zap.Error(err))
		stop()
		os.Exit(1)
	}
	printReport(rep)

	if *sequential {
		req.Mode = session.ModeSequential
		seq, err := s.Run(ctx, req)
		if err != nil {
			zlogger.Error("Sequential run failed", zap.String("kernel", cfg.Workload.Kernel), zap.Error(err))
			stop()
			os.Exit(1)
		}
		printReport(seq)
		if rep.Duration > 0 {
			fmt.Printf("speedup: %.2fx\n", float64(seq.Duration)/float64(rep.Duration))
		}
	}
}
