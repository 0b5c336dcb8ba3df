package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/audio-retro/internal/api"
	"github.com/ignite/audio-retro/internal/exchange"
	"github.com/ignite/audio-retro/internal/pipeline"
	"github.com/ignite/audio-retro/internal/pkg/logger"
	"github.com/ignite/audio-retro/internal/regions"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "retro",
		Short:         "Audio retro pipeline for Podscribe dashboard exports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newRateCmd(opts))
	cmd.AddCommand(newRenderCmd(opts))
	cmd.AddCommand(newPublishRetrosCmd(opts))
	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var printReport bool
	var cleanup bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the newest dashboard folder and publish the retro",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath, false)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("cleanup") {
				cfg.Run.Cleanup = cleanup
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.runner.Run(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if printReport {
				fmt.Fprint(out, res.Report)
				return nil
			}
			summary := *res
			summary.Report = ""
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().BoolVar(&printReport, "print", false, "Print the rendered report instead of the run summary")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Trash processed files and the folder afterwards (overrides run.cleanup)")
	return cmd
}

func newPublishRetrosCmd(opts *rootOptions) *cobra.Command {
	var lookbackDays int
	cmd := &cobra.Command{
		Use:   "publish-retros",
		Short: "Publish recent JSON retro documents as Confluence pages and trash them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath, true)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("lookback-days") {
				cfg.Retros.LookbackDays = lookbackDays
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			job, a, err := newRetroJob(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			sum, err := job.Run(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return err
			}
			if sum.Failed > 0 {
				return fmt.Errorf("%d retro document(s) failed", sum.Failed)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lookbackDays, "lookback-days", 7, "Only consider documents created in the last N days (overrides retros.lookback_days)")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the run and rate API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath, false)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			var bucket api.Pinger
			if a.store != nil {
				bucket = a.store
			}
			handlers := api.NewHandlers(a.runner, a.ledger, cfg.Exchange.SourceCurrency, cfg.Exchange.TargetCurrency)
			server := api.NewServer(cfg.Server, handlers, api.NewHealthChecker(a.db, a.redis, bucket))

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server: listening", "addr", cfg.Server.Addr())
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			logger.Info("server: shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

func newRateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rate",
		Short: "Print the current conversion rate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath, true)
			if err != nil {
				return err
			}
			conv := exchange.NewConverter(rateSource(cfg, nil), cfg.Exchange.SourceCurrency,
				cfg.Exchange.TargetCurrency, cfg.Exchange.FallbackRate)
			rate := conv.Rate(cmd.Context())
			kind := "live"
			if conv.UsedFallback() {
				kind = "fallback"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s->%s %g (%s)\n",
				cfg.Exchange.SourceCurrency, cfg.Exchange.TargetCurrency, rate, kind)
			return nil
		},
	}
}

func newRenderCmd(opts *rootOptions) *cobra.Command {
	var regionsPath string
	var rate float64
	cmd := &cobra.Command{
		Use:   "render <csv>",
		Short: "Render a report from a local CSV without publishing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath, true)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			regionMap := regions.Map{}
			if regionsPath != "" {
				var reader regions.TableReader = regions.CSVReader{Path: regionsPath}
				if strings.HasSuffix(strings.ToLower(regionsPath), ".xlsx") {
					reader = regions.XLSXReader{Path: regionsPath}
				}
				if regionMap, err = regions.Load(cmd.Context(), reader, "", cfg.Regions.Tab); err != nil {
					return err
				}
			}

			if rate <= 0 {
				rate = cfg.Exchange.FallbackRate
			}
			conv := exchange.NewConverter(nil, cfg.Exchange.SourceCurrency, cfg.Exchange.TargetCurrency, rate)

			_, report, err := pipeline.Analyze(cmd.Context(), string(data), regionMap, conv, fallbacks(cfg), renderOptions(cfg))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&regionsPath, "regions", "", "Region table as .csv or .xlsx (2-ISO, Region columns)")
	cmd.Flags().Float64Var(&rate, "rate", 0, "Conversion rate to apply (defaults to exchange.fallback_rate)")
	return cmd
}
