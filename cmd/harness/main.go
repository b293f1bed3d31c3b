package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/charmbracelet/log"

	"github.com/menmos/harness/config"
	"github.com/menmos/harness/scenarios"
)

func main() {
	var configPath string
	var binDir string
	var runPattern string
	var debug bool

	fs := flag.NewFlagSet("harness", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "harness config file (optional, defaults assume ../target/debug)")
	fs.StringVar(&binDir, "bin-dir", "", "directory containing the menmosd and amphora binaries")
	fs.StringVar(&runPattern, "run", "", "regex pattern to select scenarios to run")
	fs.BoolVar(&debug, "debug", false, "enable debug logging")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "harness",
	})
	logger := slog.New(handler)

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			logger.Error("Failed to load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if binDir != "" {
		cfg.WithBinDir(binDir)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	suite := scenarios.All()
	if runPattern != "" {
		re, err := regexp.Compile(runPattern)
		if err != nil {
			logger.Error("Invalid -run pattern", "pattern", runPattern, "error", err)
			os.Exit(1)
		}
		var filtered []scenarios.Scenario
		for _, scen := range suite {
			if re.MatchString(scen.Name) {
				filtered = append(filtered, scen)
			}
		}
		suite = filtered
	}
	if len(suite) == 0 {
		logger.Error("No scenarios matched", "pattern", runPattern)
		os.Exit(1)
	}

	fmt.Printf("Running %d scenarios against %s / %s\n\n", len(suite), cfg.DirectoryBin, cfg.StorageBin)

	results := scenarios.RunSuite(context.Background(), cfg, suite, logger, os.Stdout)
	scenarios.PrintSummary(os.Stdout, results)

	if !results.OK() {
		os.Exit(1)
	}
}
