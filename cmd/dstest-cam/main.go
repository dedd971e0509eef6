package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	detectionpipeline "github.com/e7canasta/orion-care-sensor/modules/detection-pipeline"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/appconfig"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/gstengine"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/summarybus"
)

const (
	version = "v0.1.0"

	pipelineName = "dstest1-cam-pipeline"
)

// Options are the command line settings.
type Options struct {
	Device        string
	PipelineFile  string
	TrackerConfig string
	InferConfig   string
	Platform      string
	DryRun        bool
	StatsInterval time.Duration
	Debug         bool
	Version       bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if opts.Version {
		fmt.Println("dstest-cam", version)
		return
	}

	os.Exit(run(opts))
}

func parseFlags(args []string, stderr io.Writer) (Options, error) {
	var opts Options

	fs := flag.NewFlagSet("dstest-cam", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: dstest-cam [flags] [device]\n\n")
		fs.PrintDefaults()
	}

	fs.StringVar(&opts.Device, "device", "", "V4L2 capture device (default "+appconfig.DefaultDevice+")")
	fs.StringVar(&opts.Device, "d", "", "shorthand for -device")
	fs.StringVar(&opts.PipelineFile, "pipeline", "", "HCL pipeline file (optional)")
	fs.StringVar(&opts.TrackerConfig, "tracker-config", "", "tracker key file (default "+appconfig.DefaultTrackerConfig+")")
	fs.StringVar(&opts.InferConfig, "infer-config", "", "nvinfer config file (default "+appconfig.DefaultInferConfig+")")
	fs.StringVar(&opts.Platform, "platform", "", "target platform: dgpu or tegra")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "build on the in-memory engine and feed synthetic detections")
	fs.DurationVar(&opts.StatsInterval, "stats-interval", 5*time.Second, "statistics reporting interval (0 disables)")
	fs.BoolVar(&opts.Debug, "debug", false, "enable debug logging")
	fs.BoolVar(&opts.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		if opts.Device != "" && opts.Device != fs.Arg(0) {
			fmt.Fprintf(stderr, "Error: device given both as -device and argument\n")
			return Options{}, errors.New("conflicting device")
		}
		opts.Device = fs.Arg(0)
	default:
		fs.Usage()
		return Options{}, fmt.Errorf("unexpected arguments %v", fs.Args()[1:])
	}
	return opts, nil
}

// loadConfig layers the pipeline file and the flags on top of the defaults.
func loadConfig(opts Options) (appconfig.Config, error) {
	cfg := appconfig.Default()
	if opts.PipelineFile != "" {
		var err error
		if cfg, err = appconfig.Load(opts.PipelineFile); err != nil {
			return appconfig.Config{}, err
		}
	}

	if opts.Device != "" {
		cfg.Device = opts.Device
	}
	if opts.TrackerConfig != "" {
		cfg.TrackerConfig = opts.TrackerConfig
	}
	if opts.InferConfig != "" {
		cfg.InferConfig = opts.InferConfig
	}
	if opts.Platform != "" {
		cfg.Platform = opts.Platform
	}
	if opts.Debug {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Validate()
}

func run(opts Options) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger := appconfig.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	eng, dry, err := newEngine(opts.DryRun)
	if err != nil {
		logger.Error("Failed to create engine", "error", err)
		return 1
	}

	bus := summarybus.New()
	defer bus.Close()

	ctl, err := detectionpipeline.New(cfg, eng,
		detectionpipeline.WithLogger(logger),
		detectionpipeline.WithPublisher(bus),
	)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		return 1
	}

	printBanner(cfg, ctl.RunID(), opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctl.Build(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: pipeline construction failed: %v\n", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			logger.Info("Shutdown signal received, sending end-of-stream...")
			if err := ctl.ForceStop(); err != nil {
				logger.Warn("Force stop ignored", "error", err)
			}
		}
	}()

	exit := 0
	if err := ctl.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit = 1
	} else {
		if dry != nil {
			go feedSynthetic(ctx, dry, logger)
		}
		if opts.StatsInterval > 0 {
			latest, err := bus.SubscribeLatest("stats-display")
			if err != nil {
				logger.Warn("Stats display disabled", "error", err)
			} else {
				go reportStats(ctx, opts.StatsInterval, ctl, latest, eng)
			}
		}

		reason, err := ctl.Wait(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exit = 1
		}
		logger.Debug("Run ended", "reason", reason.String())
	}
	cancel()

	if err := ctl.Teardown(); err != nil {
		logger.Error("Teardown failed", "error", err)
		exit = 1
	}

	printFinalStats(ctl.Stats(), bus.Stats())
	return exit
}

func newEngine(dryRun bool) (engine.Engine, *engine.Memory, error) {
	if dryRun {
		m := engine.NewMemory()
		return m, m, nil
	}
	e, err := gstengine.New(pipelineName)
	if err != nil {
		return nil, nil, err
	}
	return e, nil, nil
}

func printBanner(cfg appconfig.Config, runID string, opts Options) {
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║    DeepStream Camera Detection Pipeline                       ║")
	fmt.Printf("║                    Version %-34s ║\n", version)
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Run ID:          %s\n", runID)
	fmt.Printf("  Device:          %s\n", cfg.Device)
	fmt.Printf("  Camera:          %dx%d %s\n", cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.Format)
	fmt.Printf("  Muxer:           %dx%d batch=%d\n", cfg.Muxer.Width, cfg.Muxer.Height, cfg.Muxer.BatchSize)
	fmt.Printf("  Platform:        %s\n", cfg.Platform)
	fmt.Printf("  Infer Config:    %s\n", cfg.InferConfig)
	fmt.Printf("  Tracker Config:  %s\n", cfg.TrackerConfig)
	if opts.DryRun {
		fmt.Println("  Engine:          in-memory (dry run)")
	}
	fmt.Printf("  Stats Interval:  %v\n", opts.StatsInterval)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop gracefully")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
}
