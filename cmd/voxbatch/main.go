package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ambiware-labs/voxbatch/internal/config"
	"github.com/ambiware-labs/voxbatch/internal/logging"
	"github.com/ambiware-labs/voxbatch/internal/orchestrator"
	"github.com/joho/godotenv"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		inputPath   string
		outputDir   string
		checkOnly   bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&inputPath, "f", "", "Input file with one text item per line")
	flag.StringVar(&outputDir, "o", "", "Output directory for audio artifacts (overrides config)")
	flag.BoolVar(&checkOnly, "check", false, "Run the endpoint health check and exit")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	// Credentials commonly live in a .env next to the binary; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxbatch: %v\n", err)
		os.Exit(orchestrator.ExitConfig)
	}
	if outputDir != "" {
		cfg.Synthesis.OutputDir = outputDir
	}

	if !checkOnly && inputPath == "" {
		fmt.Fprintln(os.Stderr, "voxbatch: -f <input file> is required")
		flag.Usage()
		os.Exit(orchestrator.ExitConfig)
	}

	logger, closeLog, err := logging.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxbatch: %v\n", err)
		os.Exit(orchestrator.ExitConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := orchestrator.New(cfg, logger).Run(ctx, inputPath, checkOnly)
	stop()
	closeLog()
	os.Exit(code)
}
