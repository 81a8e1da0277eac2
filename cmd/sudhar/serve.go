package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sudhar-ne/sudhar/serve"
)

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the correction daemon on a Unix socket",
	Long: `Run the correction daemon. Clients send one JSON request per connection
and receive one JSON response line.

The socket is $SUDHAR_SOCKET, $XDG_RUNTIME_DIR/sudhar.sock or
/tmp/sudhar-<uid>.sock, in that order.

Examples:
  sudhar serve
  sudhar serve --metrics-addr 127.0.0.1:9464 --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sockPath := serve.ResolveSocketPath()

		slog.Info("starting", "socket", sockPath)

		srv, err := serve.NewServer(sockPath)
		if err != nil {
			return err
		}
		defer srv.Close()

		if metricsAddr != "" {
			ms := newMetricsServer(metricsAddr)
			go func() {
				if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("metrics server error", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				ms.Shutdown(shutdownCtx)
			}()
			slog.Info("serving metrics", "addr", metricsAddr)
		}

		go func() {
			<-ctx.Done()
			slog.Info("shutting down")
			srv.Close()
		}()

		slog.Info("ready")
		return srv.Serve()
	},
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (disabled when empty)")

	rootCmd.AddCommand(serveCmd)
}
