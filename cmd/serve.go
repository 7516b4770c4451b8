package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/collectscope/identify-cli/internal/engine"
	"github.com/collectscope/identify-cli/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the identification HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		go newChecker(env).Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env, cfg.Vision.MaxImageBytes, cfg.Monitoring.LookbackWindowHours),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// identifyPayload is the POST /identify request body. Image carries
// base64-encoded bytes; image_handle is an opaque reference for content
// stored elsewhere.
type identifyPayload struct {
	Image       string `json:"image,omitempty"`
	ImageHandle string `json:"image_handle,omitempty"`
	Category    string `json:"category"`
	Depth       string `json:"depth"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

func newRouter(env *engineEnv, maxImageBytes, lookbackHours int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/identify", func(w http.ResponseWriter, req *http.Request) {
		var payload identifyPayload
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if payload.Image == "" && payload.ImageHandle == "" && payload.Fingerprint == "" {
			writeError(w, http.StatusBadRequest, "image, image_handle or fingerprint is required")
			return
		}

		identifyReq := model.Request{
			ImageHandle: payload.ImageHandle,
			Category:    model.Category(payload.Category),
			Depth:       model.Depth(payload.Depth),
			Fingerprint: payload.Fingerprint,
		}
		if payload.Depth == "" {
			identifyReq.Depth = model.DepthBasic
		}
		if payload.Image != "" {
			data, err := base64.StdEncoding.DecodeString(payload.Image)
			if err != nil {
				writeError(w, http.StatusBadRequest, "image must be base64 encoded")
				return
			}
			if maxImageBytes > 0 && len(data) > maxImageBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "image too large")
				return
			}
			identifyReq.Image = data
		}

		resp, err := env.Engine.Identify(req.Context(), identifyReq)
		if err != nil {
			if errors.Is(err, engine.ErrNoSources) {
				writeError(w, http.StatusServiceUnavailable, "no eligible sources")
				return
			}
			zap.L().Error("identify request failed", zap.Error(err))
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/sources", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, env.Registry.Snapshot())
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		snap, err := env.Collector.Collect(req.Context(), lookbackHours)
		if err != nil {
			zap.L().Error("status collection failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "metrics collection failed")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
