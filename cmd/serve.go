package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for moderation requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initModeration(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Set up routes
		mux := http.NewServeMux()

		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		mux.HandleFunc("POST /webhook/moderate", func(w http.ResponseWriter, r *http.Request) {
			var req submissionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}

			sub, err := req.toSubmission()
			if err != nil {
				http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
				return
			}

			decision, err := env.Pipeline.Moderate(r.Context(), sub)
			if err != nil {
				zap.L().Error("webhook moderation failed",
					zap.String("listing_id", req.ListingID),
					zap.Error(err),
				)
				http.Error(w, `{"error":"moderation failed"}`, http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(decision)
		})

		mux.HandleFunc("GET /decisions/{listing_id}", func(w http.ResponseWriter, r *http.Request) {
			listingID := r.PathValue("listing_id")
			decision, err := env.Store.GetDecision(r.Context(), listingID)
			if err != nil {
				zap.L().Error("decision lookup failed",
					zap.String("listing_id", listingID),
					zap.Error(err),
				)
				http.Error(w, `{"error":"lookup failed"}`, http.StatusInternalServerError)
				return
			}
			if decision == nil {
				http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(decision)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go waitAndShutdown(ctx, srv, 30*time.Second)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// waitAndShutdown blocks until ctx is cancelled, then drains the server.
// The signal context is already cancelled at that point, so the drain
// window needs its own context or in-flight moderations get aborted.
func waitAndShutdown(ctx context.Context, srv *http.Server, drain time.Duration) {
	<-ctx.Done()
	zap.L().Info("shutting down server")
	drainCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
