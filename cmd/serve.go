package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mycelica/arbor/internal/server"
)

var (
	serveAddr  string
	servePrune time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local database over HTTP for remote editors",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer d.Close()

		addr := serveAddr
		if addr == "" {
			addr = cfg.ServerAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePrune > 0 {
			go prunePresence(ctx, servePrune, func(ctx context.Context, cutoff int64) (int64, error) {
				return d.PruneActiveEditors(ctx, cutoff)
			})
		}
		return server.New(d, log).Run(ctx, addr)
	},
}

// prunePresence drops presence records older than maxAge every maxAge/2,
// clearing editors that vanished without leaving.
func prunePresence(ctx context.Context, maxAge time.Duration, prune func(context.Context, int64) (int64, error)) {
	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := prune(ctx, now.Add(-maxAge).UnixMilli())
			if err != nil {
				log.WithError(err).Warn("presence prune failed")
			} else if n > 0 {
				log.WithField("removed", n).Debug("pruned stale editors")
			}
		}
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config server_addr)")
	serveCmd.Flags().DurationVar(&servePrune, "prune-after", 2*time.Minute, "Drop editors without a heartbeat for this long (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
