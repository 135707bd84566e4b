package cli

import (
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only monitor API",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			srv := &http.Server{
				Addr:              addr,
				Handler:           server.New(st, logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Shut down cleanly when the command context is cancelled.
			go func() {
				<-cmd.Context().Done()
				srv.Close()
			}()

			logger.Info("monitor API listening", "addr", addr, "db", flagDB)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}
