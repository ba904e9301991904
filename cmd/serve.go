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

	"github.com/sells-group/legal-analyzer/internal/model"
	"github.com/sells-group/legal-analyzer/internal/pipeline"
	"github.com/sells-group/legal-analyzer/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Evict finished jobs so the registry does not grow unbounded.
		retention := time.Duration(cfg.Pipeline.JobRetentionHours) * time.Hour
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := env.Registry.CleanupOlderThan(retention); n > 0 {
						zap.L().Info("cleaned up finished jobs", zap.Int("removed", n))
					}
				}
			}
		}()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env.Service, env.Store),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the HTTP API. Analyses run asynchronously: POST returns a
// job ID immediately, progress and results are polled by ID.
func newRouter(svc *pipeline.Service, st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/analyses", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			DocumentID string `json:"documentId"`
			Filename   string `json:"filename"`
			Text       string `json:"text"`
			Mode       string `json:"mode"`
			UserInfo   string `json:"userInfo"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Text == "" {
			respondError(w, http.StatusBadRequest, "text is required")
			return
		}
		mode := model.AnalysisMode(body.Mode)
		switch mode {
		case "":
			mode = model.ModeThorough
		case model.ModeQuick, model.ModeThorough:
		default:
			respondError(w, http.StatusBadRequest, "mode must be quick or thorough")
			return
		}

		jobID, err := svc.StartAnalysis(body.DocumentID, body.Filename, body.Text, mode, body.UserInfo)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		respondJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
	})

	r.Get("/analyses/{jobID}/status", func(w http.ResponseWriter, req *http.Request) {
		job, err := svc.GetJobStatus(chi.URLParam(req, "jobID"))
		if err != nil {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		respondJSON(w, http.StatusOK, job)
	})

	r.Get("/analyses/{jobID}/result", func(w http.ResponseWriter, req *http.Request) {
		jobID := chi.URLParam(req, "jobID")
		analysis, err := svc.GetResult(req.Context(), jobID)
		if err != nil {
			var failed *pipeline.AnalysisFailedError
			switch {
			case eris.Is(err, pipeline.ErrAnalysisPending):
				body := map[string]any{"status": "pending"}
				if job, jobErr := svc.GetJobStatus(jobID); jobErr == nil {
					body["stage"] = job.Stage
					body["progressPercent"] = job.ProgressPercent
				}
				respondJSON(w, http.StatusAccepted, body)
			case errors.As(err, &failed):
				respondJSON(w, http.StatusInternalServerError, map[string]string{
					"status": "failed",
					"error":  failed.Reason,
				})
			case eris.Is(err, store.ErrNotFound):
				respondError(w, http.StatusNotFound, "result not found")
			default:
				respondError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		respondJSON(w, http.StatusOK, analysis)
	})

	r.Get("/analyses/{jobID}/audit", func(w http.ResponseWriter, req *http.Request) {
		trail, err := svc.GetAuditTrail(req.Context(), chi.URLParam(req, "jobID"))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, "audit trail not found")
				return
			}
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, trail)
	})

	r.Post("/analyses/{jobID}/cancel", func(w http.ResponseWriter, req *http.Request) {
		if err := svc.Cancel(chi.URLParam(req, "jobID")); err != nil {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
	})

	r.Get("/jobs", func(w http.ResponseWriter, req *http.Request) {
		var jobs []*model.AnalysisJob
		if req.URL.Query().Get("active") == "true" {
			jobs = svc.ActiveJobs()
		} else {
			jobs = svc.AllJobs()
		}
		respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
	})

	r.Get("/analyses", func(w http.ResponseWriter, req *http.Request) {
		limit := 50
		if q := req.URL.Query().Get("limit"); q != "" {
			if _, err := fmt.Sscanf(q, "%d", &limit); err != nil || limit < 1 {
				respondError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
		}
		summaries, err := st.ListAnalyses(req.Context(), limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"analyses": summaries, "count": len(summaries)})
	})

	return r
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
