package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nhle/contextcatcher/internal/app"
	"github.com/nhle/contextcatcher/internal/credential"
	"github.com/nhle/contextcatcher/internal/model"
)

// openKeyring is swapped out by tests.
var openKeyring = credential.Open

// newLogger builds the process logger. Library packages only ever receive
// it by injection.
func newLogger(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
	}), nil
}

// loadConfig reads the config file and fills missing secrets from the
// system keyring. An unavailable keyring is logged, not fatal.
func loadConfig(flags *globalFlags, logger *log.Logger) (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	if cfg.Email.Password == "" || (cfg.LLM.Enabled && cfg.LLM.APIKey == "") {
		ring, err := openKeyring()
		if err != nil {
			logger.Warn("keyring unavailable", "err", err)
		} else {
			credential.FillSecrets(ring, cfg, logger)
		}
	}

	logger.Debug("config loaded", "path", flags.configPath, "config", cfg.Masked())
	return cfg, nil
}

// openApp is the shared setup for commands that need the store.
func openApp(cmd *cobra.Command, flags *globalFlags) (*app.App, *log.Logger, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), flags.logLevel)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := loadConfig(flags, logger)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(commandContext(cmd), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
