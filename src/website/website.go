package website

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/app"
	"github.com/PatchWorkCreations/iriseup-foundation/src/config"
	"github.com/PatchWorkCreations/iriseup-foundation/src/jobs"
	"github.com/PatchWorkCreations/iriseup-foundation/src/logging"
	"github.com/PatchWorkCreations/iriseup-foundation/src/media"
	"github.com/PatchWorkCreations/iriseup-foundation/src/oops"
	"github.com/PatchWorkCreations/iriseup-foundation/src/perf"
	"github.com/spf13/cobra"
)

var (
	configPath string
	inMemory   bool
)

var WebsiteCommand = &cobra.Command{
	Use:   "iriseup",
	Short: "Run the iriseup media service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		config.Config = cfg
		logging.Init(cfg)
		return nil
	},
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logging.LogPanics(nil)
		return Serve(cmd.Context(), config.Config, inMemory)
	},
}

func init() {
	WebsiteCommand.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default ./iriseup.*)")
	WebsiteCommand.Flags().BoolVar(&inMemory, "in-memory", false, "Keep media records in memory instead of Postgres")
}

func Serve(ctx context.Context, cfg config.IriseupConfig, inMemory bool) error {
	logging.Info().Str("env", string(cfg.Env)).Msg("Hello, iriseup!")

	var records media.Records
	if inMemory {
		logging.Warn().Msg("Media records are kept in memory and will be lost on shutdown")
		records = media.NewMemoryRecords()
	} else {
		conn, err := app.ConnectRecords(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer conn.Close()
		records = conn.Records
	}

	svc, err := app.NewMedia(ctx, cfg, records)
	if err != nil {
		return err
	}

	perfCtx, stopPerf := context.WithCancel(context.Background())
	defer stopPerf()
	perfCollector := perf.RunPerfCollector(perfCtx, perf.DefaultPerfHistory)

	server := &http.Server{
		Addr: cfg.Addr,
		Handler: NewWebsiteRoutes(RoutesConfig{
			Media:         svc.Service,
			MediaConfig:   cfg.Media,
			Uploads:       cfg.Uploads,
			PerfCollector: perfCollector,
			Gatherer:      svc.Registry,
			TrustProxy:    cfg.TrustProxy,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)

	serverJob := jobs.Start("http server", func(ctx context.Context) error {
		logging.Info().Str("addr", cfg.Addr).Msg("Serving the website")
		serverErr := server.ListenAndServe()
		if !errors.Is(serverErr, http.ErrServerClosed) {
			return serverErr
		}
		return nil
	})
	backgroundJobs := jobs.Jobs{serverJob}

	// Wait for SIGINT/SIGTERM (or the server dying) and trigger graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		select {
		case <-signals: // First signal (start shutdown)
		case <-serverJob.Finished():
		case <-ctx.Done():
		}
		logging.Info().Msg("Shutting down the website")

		const timeout = 10 * time.Second

		go func() {
			timeoutCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			err := server.Shutdown(timeoutCtx)
			if err != nil {
				logging.Warn().Err(err).Msg("Server did not shut down gracefully")
			}

			unfinished := backgroundJobs.CancelAndWait(timeout)
			if len(unfinished) == 0 {
				logging.Info().Msg("Background jobs closed gracefully")
			} else {
				logging.Warn().Strs("Unfinished", unfinished).Msg("Background jobs did not finish by the deadline")
			}
			wg.Done()
		}()

		<-signals // Second signal (force quit)
		logging.Warn().Strs("Unfinished background jobs", backgroundJobs.ListUnfinished()).Msg("Forcibly killed the website")
		os.Exit(1)
	}()

	// Wait for all of the above to finish, then exit
	wg.Wait()
	if err := serverJob.Err(); err != nil {
		return oops.New(err, "http server failed")
	}
	return nil
}
