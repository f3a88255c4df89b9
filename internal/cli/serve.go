package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gxp-audit/gxa/internal/server"
	"github.com/gxp-audit/gxa/pkg/logging"
)

var (
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the HTTP API, including /metrics for Prometheus.

Routes:
  GET    /health
  GET    /metrics
  GET    /entities/{type}/{id}
  PUT    /entities/{type}/{id}            (X-Actor-ID required)
  DELETE /entities/{type}/{id}            (X-Actor-ID required)
  GET    /entities/{type}/{id}/audit
  GET    /entities/{type}/{id}/verify
  POST   /entities/{type}/{id}/rollback   {"audit_entry_id": ..., "confirm": true, "expected_revision": N}
  POST   /entities/{type}/{id}/export
  GET    /audit/{entryID}
  GET    /audit/{entryID}/verify
  GET    /audit/{entryID}/preview
  GET    /events                          websocket feed of audit entries

The server runs in the foreground until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		addr := serveAddr
		if addr == "" {
			addr = client.Config().HTTP.Addr
		}
		ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		printf(cmd, "gxa API listening on %s\n", addr)
		return server.New(client, logging.Default()).ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default http.addr from config)")
	rootCmd.AddCommand(serveCmd)
}
