// cfip harvests Cloudflare edge IPs from ranking pages and plain lists,
// writes them as ip#CC-speed lines and optionally publishes the result.
//
// Usage:
//
//	cfip run      # harvest and publish
//	cfip check    # validate configuration only
//	cfip version
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cfip_nexus/internal/shared/config"
	"cfip_nexus/internal/shared/logger"
	"cfip_nexus/internal/shared/types"
	"cfip_nexus/ippool/aggregator"
	"cfip_nexus/ippool/geo"
	"cfip_nexus/ippool/publisher"
	"cfip_nexus/ippool/report"
	"cfip_nexus/ippool/scraper"
	"cfip_nexus/ippool/storage"
)

var version = "dev"

func main() {
	var configDir string

	rootCmd := &cobra.Command{
		Use:           "cfip",
		Short:         "Harvest and publish preferred Cloudflare IPs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "configdir", "configs", "Path to config directory")

	rootCmd.AddCommand(runCmd(&configDir))
	rootCmd.AddCommand(checkCmd(&configDir))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}
}

func runCmd(configDir *string) *cobra.Command {
	var dryRun bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch all sources, build the IP list and publish it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sources, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			return runHarvest(cmd.Context(), cfg, sources, dryRun, quiet)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Harvest only, do not write or publish anything")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the ranking table")
	return cmd
}

func checkCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration without any network access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sources, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			if _, err := scraper.NewAll(sources, fetchOptions(cfg)); err != nil {
				return err
			}
			logger.Info().Int("sources", len(sources)).Str("output", cfg.OutputConf.Path).Msg("Configuration OK.")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("cfip", version)
		},
	}
}

// loadConfig reads cfip.ini and sources.yaml, initializes logging and
// validates everything before any request is made.
func loadConfig(configDir string) (*types.Config, []types.SourceSpec, error) {
	iniPath := filepath.Join(configDir, "cfip.ini")
	sourcesPath := filepath.Join(configDir, "sources.yaml")

	cfg := new(types.Config)
	if err := config.LoadIni(cfg, iniPath); err != nil {
		return nil, nil, fmt.Errorf("failed to load config file '%s': %w", iniPath, err)
	}

	if err := logger.Init(cfg.LogConf); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	sources, err := config.LoadSources(sourcesPath)
	if err != nil {
		return nil, nil, err
	}
	if err := config.Validate(cfg, sources); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, sources, nil
}

func fetchOptions(cfg *types.Config) scraper.FetchOptions {
	return scraper.FetchOptions{
		Timeout:   time.Duration(cfg.HarvestConf.TimeoutSeconds) * time.Second,
		UserAgent: cfg.HarvestConf.UserAgent,
		ProxyURL:  cfg.HarvestConf.ProxyURL,
	}
}

func runHarvest(parent context.Context, cfg *types.Config, specs []types.SourceSpec, dryRun, quiet bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, err := scraper.NewAll(specs, fetchOptions(cfg))
	if err != nil {
		return err
	}

	resolver := geo.NewResolver(geo.Options{
		Endpoint:      cfg.GeoConf.Endpoint,
		Timeout:       time.Duration(cfg.GeoConf.TimeoutSeconds) * time.Second,
		RatePerMinute: cfg.GeoConf.RatePerMinute,
	})

	agg, err := aggregator.New(sources, resolver, aggregator.Options{GeoConcurrency: cfg.GeoConf.Concurrency})
	if err != nil {
		return err
	}

	res := agg.Run(ctx)
	if !quiet {
		report.Print(os.Stdout, res)
	}

	if dryRun {
		logger.Info().Str("run_id", res.RunID).Msg("Dry run, nothing written.")
		return nil
	}

	d := publisher.NewDispatcher(artifactName(cfg))
	d.AddTarget(publisher.NewFileTarget(storage.NewFileStorage(cfg.OutputConf.Path)))
	if cfg.GitHubConf.Enabled {
		d.AddTarget(publisher.NewGitHubTarget(cfg.GitHubConf))
	}
	if cfg.TelegramConf.Enabled {
		d.AddNotifier(publisher.NewTelegramNotifier(cfg.TelegramConf))
	}

	if _, err := d.Publish(ctx, res); err != nil {
		if errors.Is(err, publisher.ErrDegradedRun) {
			// Keep the previous artifact; the next scheduled run may do better.
			logger.Warn().Str("run_id", res.RunID).Str("output", cfg.OutputConf.Path).Msg("All sources failed, previous artifact kept.")
			return nil
		}
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// artifactName is the file name remote consumers see.
func artifactName(cfg *types.Config) string {
	if cfg.GitHubConf.Path != "" {
		return filepath.Base(cfg.GitHubConf.Path)
	}
	return filepath.Base(cfg.OutputConf.Path)
}
