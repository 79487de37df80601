package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/trainboard/internal/client"
	"github.com/kiranshivaraju/trainboard/internal/config"
	"github.com/kiranshivaraju/trainboard/internal/dashboard"
	"github.com/kiranshivaraju/trainboard/internal/lifecycle"
	"github.com/spf13/cobra"
)

// app is what every subcommand runs against. It is built once per
// invocation in the root command's PersistentPreRunE.
type app struct {
	serverURL string
	token     string
	timeout   time.Duration
	outputFmt string
	verbose   bool

	store *dashboard.Store
	ctrl  *lifecycle.Controller
	out   *printer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "trainctl",
		Short:         "Manage datasets, models and deployments on a trainboard server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.serverURL, "server", "", "API base URL (default: TRAINBOARD_API_URL or http://localhost:8080/api)")
	root.PersistentFlags().StringVar(&a.token, "token", "", "bearer token or API key (default: TRAINBOARD_TOKEN)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 0, "per-request timeout (default: TRAINBOARD_TIMEOUT or 30s)")
	root.PersistentFlags().StringVarP(&a.outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log requests and refreshes to stderr")

	root.AddCommand(
		newOverviewCmd(a),
		newDatasetsCmd(a),
		newModelsCmd(a),
		newDeploymentsCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	format, err := parseFormat(a.outputFmt)
	if err != nil {
		return err
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.APIURL = a.serverURL
	}
	if flags.Changed("token") {
		cfg.Token = a.token
	}
	if flags.Changed("timeout") {
		cfg.Timeout = a.timeout
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	api := client.NewHTTPClient(cfg.APIURL, cfg.Token, cfg.Timeout)
	a.store = dashboard.NewStore(api, logger)
	a.ctrl = lifecycle.New(api, a.store, logger)
	a.out = newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), format)

	logger.Debug("client configured", "api_url", cfg.APIURL, "timeout", cfg.Timeout)
	return nil
}
