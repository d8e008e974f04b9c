package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"archon/internal/config"
	"archon/internal/logging"
)

var (
	version = "0.1.0"
	cfgFile string
	model   string
	demo    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "archon",
		Short: "Project context workspace for AI-assisted backend design",
		Long: `Archon mirrors a project tree, harvests its source into a single context
document, publishes that document to a Gemini context cache and asks an
architect model to design the matching backend.

A project is a local path, file:///path, sftp://user@host/path or
s3://bucket/prefix. Without one, the current directory is used.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/archon/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "model to use, or a preset name (architect, fast, local)")
	rootCmd.PersistentFlags().BoolVar(&demo, "demo", false, "use a built-in in-memory sample project")

	rootCmd.AddCommand(
		newInitCmd(),
		newTreeCmd(),
		newCatCmd(),
		newWriteCmd(),
		newTouchCmd(),
		newHarvestCmd(),
		newPublishCmd(),
		newAskCmd(),
		newChatCmd(),
		newBrowseCmd(),
		newWatchCmd(),
		newServeCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("archon version %s\n", version)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Close()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the configuration and applies global flags. Logs go
// to stderr unless toFile is set, in which case they go to archon.log
// when logging.file is enabled and nowhere otherwise.
func loadConfig(toFile bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Version = version

	if model != "" {
		if !cfg.ApplyPreset(model) {
			cfg.Model.Name = model
			cfg.API.Provider = config.DetectProvider(model)
		}
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	switch {
	case toFile && cfg.Logging.File:
		if err := logging.EnableFileLogging(config.GetConfigDir(), level); err != nil {
			return nil, fmt.Errorf("failed to enable file logging: %w", err)
		}
	case toFile:
		logging.DisableLogging()
	default:
		logging.Configure(level, os.Stderr)
	}
	return cfg, nil
}
