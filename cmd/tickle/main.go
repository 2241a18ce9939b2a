// Command tickle evaluates a declarative task agenda, either once
// (offline) or persistently against filesystem changes (online).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soren-n/tickle/internal/config"
	"github.com/soren-n/tickle/internal/driver"
	"github.com/soren-n/tickle/internal/logger"
)

// version is set at build time via -ldflags.
var version = "0.0.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "tickle",
		Short: "A file-driven task-graph evaluator",
	}

	bindFlags(root, v)

	root.AddCommand(newOfflineCommand(v))
	root.AddCommand(newOnlineCommand(v))
	root.AddCommand(newCleanCommand(v))
	root.AddCommand(newVersionCommand())

	return root
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.Int("workers", 0, "worker count (default cpu_count-1)")
	flags.String("agenda", "./agenda.yaml", "path to the agenda file")
	flags.String("depend", "./depend.yaml", "path to the depend file")
	flags.String("cache", "./tickle.cache", "path to the cache file")
	flags.String("log", "./tickle.log", "path to the log file")
	flags.Bool("debug", false, "raise log level to debug")
	flags.String("log-format", "text", "console log format: text|json")
	flags.String("config", "", "path to an optional config file merged under flags")
	flags.String("reconcile-cron", "", "online mode only: cron expression for periodic full reconciliation")

	for _, name := range []string{
		"workers", "agenda", "depend", "cache", "log",
		"debug", "log-format", "config", "reconcile-cron",
	} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
}

// loadRuntime resolves the merged configuration and constructs a logger
// and a driver.Config from it.
func loadRuntime(v *viper.Viper) (*config.Config, logger.Logger, driver.Config, error) {
	if configPath := v.GetString("config"); configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, driver.Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, driver.Config{}, err
	}

	targetDir, err := os.Getwd()
	if err != nil {
		return nil, nil, driver.Config{}, err
	}

	var logOpts []logger.Option
	if cfg.Debug {
		logOpts = append(logOpts, logger.WithDebug())
	}
	logOpts = append(logOpts, logger.WithFormat(cfg.LogFormat))
	logFile, err := os.OpenFile(resolve(targetDir, cfg.LogPath), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, driver.Config{}, fmt.Errorf("opening log file: %w", err)
	}
	logOpts = append(logOpts, logger.WithLogFile(logFile))
	log := logger.NewLogger(logOpts...)

	workers := cfg.Workers
	if workers < 1 {
		workers = config.DefaultWorkerCount()
	}

	dcfg := driver.Config{
		AgendaPath:    resolve(targetDir, cfg.AgendaPath),
		DependPath:    resolve(targetDir, cfg.DependPath),
		CachePath:     resolve(targetDir, cfg.CachePath),
		TargetDir:     targetDir,
		Workers:       workers,
		ReconcileCron: cfg.ReconcileCron,
	}
	return cfg, log, dcfg, nil
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(root, path))
}

func newOfflineCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "offline",
		Short: "Evaluate the agenda once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, dcfg, err := loadRuntime(v)
			if err != nil {
				return err
			}
			if _, err := os.Stat(dcfg.AgendaPath); err != nil {
				return fmt.Errorf("agenda file not found: %s", dcfg.AgendaPath)
			}

			d, err := driver.NewOffline(dcfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			return d.Start()
		},
	}
}

func newOnlineCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "online",
		Short: "Evaluate the agenda persistently, reacting to filesystem changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, dcfg, err := loadRuntime(v)
			if err != nil {
				return err
			}
			if _, err := os.Stat(dcfg.AgendaPath); err != nil {
				return fmt.Errorf("agenda file not found: %s", dcfg.AgendaPath)
			}

			d, err := driver.NewOnline(dcfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			go listenForSignal(func() { _ = d.Stop() })
			return d.Start()
		},
	}
}

func newCleanCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove every engine-generated file, folder and the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, dcfg, err := loadRuntime(v)
			if err != nil {
				return err
			}
			return driver.Clean(dcfg, log)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tickle version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
