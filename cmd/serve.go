package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/burghandi/commute-cli/internal/commute"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP front end for commute filtering",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine()
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":        "ok",
				"areas":         env.Registry.Len(),
				"cache_entries": env.Cache.Len(),
			})
		})

		r.Post("/filter", func(w http.ResponseWriter, req *http.Request) {
			handleFilter(env, w, req)
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("http server listening", zap.Int("port", cfg.Server.Port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			zap.L().Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return eris.Wrap(err, "server shutdown")
			}
			return nil
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return eris.Wrap(err, "server")
		}
	},
}

// filterRequest is the POST /filter payload. Area is optional; when empty
// the workplace point is resolved against the outcode service.
type filterRequest struct {
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Area          string   `json:"area,omitempty"`
	MaxTravelTime *int     `json:"max_travel_time"`
	Mode          string   `json:"mode,omitempty"`
}

func handleFilter(env *engineEnv, w http.ResponseWriter, req *http.Request) {
	var body filterRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.Latitude == nil || body.Longitude == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing required parameters: latitude and longitude"})
		return
	}
	if body.MaxTravelTime == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing required parameter: max_travel_time"})
		return
	}

	area := body.Area
	if area == "" {
		resolved, err := env.Postcodes.ResolveArea(req.Context(), *body.Latitude, *body.Longitude)
		if err != nil {
			zap.L().Warn("area resolution failed", zap.Error(err))
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "could not resolve workplace area"})
			return
		}
		area = resolved
	}

	result, err := env.Filter.Filter(req.Context(), commute.Request{
		Lat:    *body.Latitude,
		Lon:    *body.Longitude,
		Area:   area,
		Budget: *body.MaxTravelTime,
		Mode:   body.Mode,
	})
	if err != nil {
		if eris.Is(err, commute.ErrUnsupportedMode) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		zap.L().Error("filter failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "filter failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workplace_area": area,
		"areas":          result,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
