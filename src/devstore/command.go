package devstore

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PatchWorkCreations/iriseup-foundation/src/jobs"
	"github.com/PatchWorkCreations/iriseup-foundation/src/logging"
	"github.com/PatchWorkCreations/iriseup-foundation/src/website"
	"github.com/spf13/cobra"
)

func init() {
	var addr string

	devstoreCommand := &cobra.Command{
		Use:   "devstore [storage folder]",
		Short: "Run a local S3-compatible object store for the remote media backend",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetFolder := "./tmp/devstore"
			if len(args) > 0 {
				targetFolder = args[0]
			}
			server, err := New(targetFolder)
			if err != nil {
				return err
			}

			job := server.Start(addr)

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(signals)
			select {
			case <-signals:
			case <-job.Finished():
			}

			if unfinished := (jobs.Jobs{job}).CancelAndWait(10 * time.Second); len(unfinished) > 0 {
				logging.Warn().Strs("Unfinished", unfinished).Msg("Dev object store did not shut down in time")
			}
			return nil
		},
	}
	devstoreCommand.Flags().StringVar(&addr, "addr", ":9003", "Address to listen on")

	website.WebsiteCommand.AddCommand(devstoreCommand)
}
