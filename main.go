package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", filepath.Join(getUserDataDir(), "config.yaml"), "Path to configuration file")
	dryRun := flag.Bool("dry-run", false, "Test mode: stop before placing any order")
	debug := flag.Bool("debug", false, "Enable detailed debug logging")
	headless := flag.Bool("headless", false, "Run the browser without a window")
	flag.Parse()

	if err := InitLocale(); err != nil {
		log.Printf("Warning: Locale initialization failed, using message keys: %v", err)
	}

	if err := os.MkdirAll(getUserDataDir(), 0755); err != nil {
		log.Println(T("error_user_data_dir", getUserDataDir(), err))
	}

	config, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.ApplyEnv()

	if *dryRun {
		config.DryRun = true
	}
	if *debug {
		config.DebugMode = true
	}
	if *headless {
		config.Headless = true
	}

	logger, err := newLogger(config.DebugMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║               Epic Games Free Item Claimer                ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Claim page: %s\n", config.ClaimURL)
	fmt.Printf("Browser Profile: %s\n", config.BrowserProfilePath)
	fmt.Printf("Ledger: %s\n", config.LedgerPath)
	if config.DryRun {
		fmt.Println(T("dry_run_mode"))
	}
	if config.DebugMode {
		fmt.Println("🔍 DEBUG MODE - Detailed logging enabled")
	}
	fmt.Println()

	if err := run(config, logger); err != nil {
		logger.Error("Run failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(config *Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ledger, err := LoadLedger(config.LedgerPath, logger.Named("ledger"))
	if err != nil {
		return err
	}

	automation := NewAutomation(config, logger)
	defer automation.Close()

	if err := automation.setupBrowser(); err != nil {
		return err
	}
	page, err := automation.openPage()
	if err != nil {
		return err
	}
	go automation.watchBrowser(cancel)

	runner := NewRunner(config, ledger, NewFileReporter(config.ScreenshotDir), logger)
	return runner.Run(ctx, page)
}

func getUserDataDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return "./freebie-data"
	}
	return filepath.Join(home, ".freebie")
}
