package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/truckwatch/fleet-alerts/internal/app"
	"github.com/truckwatch/fleet-alerts/internal/conf"
	"github.com/truckwatch/fleet-alerts/internal/errors"
	"github.com/truckwatch/fleet-alerts/internal/logger"
)

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "fleet-alerts",
		Short:         "Evaluate truck telemetry against alert rules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"path to a YAML config file (environment variables use the "+conf.EnvPrefix+"_ prefix)")

	root.AddCommand(
		serveCommand(&configFile),
		checkConfigCommand(&configFile),
		versionCommand(),
	)
	return root
}

func serveCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume positions and publish alerts until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := conf.Load(*configFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), settings)
		},
	}
}

func serve(parent context.Context, settings *conf.Settings) error {
	log := logger.NewSlogLoggerWithOptions(os.Stdout, logger.ParseLevel(settings.Log.Level), nil,
		logger.Options{Format: settings.Log.Format}).
		With(logger.String("service", "fleet-alerts"), logger.String("version", version))

	flush, err := errors.InitSentry(errors.SentryConfig{
		DSN:         settings.Sentry.DSN,
		Environment: settings.Sentry.Environment,
		Release:     "fleet-alerts@" + version,
		SampleRate:  settings.Sentry.SampleRate,
	})
	if err != nil {
		log.Warn("sentry disabled", logger.Error(err))
	}
	defer flush()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, settings, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Error("service stopped with error", logger.Error(err))
		return err
	}
	log.Info("service stopped")
	return nil
}

func checkConfigCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the effective settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := conf.Load(*configFile)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(settings.Redacted())
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fleet-alerts %s (built %s)\n", version, buildDate)
		},
	}
}
