package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/monitoring"
	"github.com/sells-group/email-analyzer/internal/resilience"
	"github.com/sells-group/email-analyzer/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP analysis server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(env.Collector(), monitoring.NewAlerter(cfg.Monitoring), snapshotPublisher(env), cfg.Monitoring)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env, cfg.Monitoring.LookbackHours),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

type analyzeRequest struct {
	Message  model.Message   `json:"message"`
	Siblings []model.Message `json:"siblings,omitempty"`
}

type batchRequest struct {
	Messages []model.Message `json:"messages"`
}

// buildRouter wires the HTTP API over env.
func buildRouter(env *appEnv, lookbackHours int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"open_circuits": env.Guard.Breakers().Open(),
		})
	})

	r.Post("/analyze", func(w http.ResponseWriter, req *http.Request) {
		var body analyzeRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Message.ID == "" {
			writeError(w, http.StatusBadRequest, "message.id is required")
			return
		}
		a, err := env.Pipeline.Analyze(req.Context(), body.Message, body.Siblings)
		if err != nil {
			zap.L().Error("serve: analyze failed", zap.String("message_id", body.Message.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "analysis failed")
			return
		}
		writeJSON(w, http.StatusOK, a)
	})

	r.Post("/analyze/batch", func(w http.ResponseWriter, req *http.Request) {
		var body batchRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(body.Messages) == 0 {
			writeError(w, http.StatusBadRequest, "messages is required")
			return
		}
		results, err := env.Pipeline.AnalyzeBatch(req.Context(), body.Messages)
		if err != nil {
			zap.L().Error("serve: batch failed", zap.Int("messages", len(body.Messages)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "analysis failed")
			return
		}
		writeJSON(w, http.StatusOK, summarize(len(body.Messages), results, env.Pipeline.CostTracker().Total()))
	})

	r.Get("/analyses", func(w http.ResponseWriter, req *http.Request) {
		filter, err := parseAnalysisFilter(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		list, err := env.Store.ListAnalyses(req.Context(), filter)
		if err != nil {
			zap.L().Error("serve: list analyses", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list analyses failed")
			return
		}
		writeJSON(w, http.StatusOK, list)
	})

	r.Get("/analyses/{id}", func(w http.ResponseWriter, req *http.Request) {
		a, err := env.Store.GetAnalysis(req.Context(), chi.URLParam(req, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "analysis not found")
			return
		}
		if err != nil {
			zap.L().Error("serve: get analysis", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get analysis failed")
			return
		}
		writeJSON(w, http.StatusOK, a)
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		hours := lookbackHours
		if v := req.URL.Query().Get("lookback_hours"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "lookback_hours must be a positive integer")
				return
			}
			hours = n
		}
		snap, err := env.Collector().Collect(req.Context(), hours)
		if err != nil {
			zap.L().Error("serve: collect metrics", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "collect metrics failed")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Get("/dlq", func(w http.ResponseWriter, req *http.Request) {
		entries, err := env.Store.ListDLQ(req.Context(), resilience.DLQFilter{
			ErrorType: req.URL.Query().Get("error_type"),
		})
		if err != nil {
			zap.L().Error("serve: list dlq", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list dlq failed")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	r.Post("/dlq/retry", func(w http.ResponseWriter, req *http.Request) {
		sum, err := env.Pipeline.RetryDLQ(req.Context(), resilience.DLQFilter{})
		if err != nil {
			zap.L().Error("serve: retry dlq", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "retry dlq failed")
			return
		}
		writeJSON(w, http.StatusOK, sum)
	})

	return r
}

// parseAnalysisFilter reads list filters from the query string.
func parseAnalysisFilter(req *http.Request) (store.AnalysisFilter, error) {
	q := req.URL.Query()
	var f store.AnalysisFilter

	if v := q.Get("priority"); v != "" {
		p, ok := model.ParsePriority(v)
		if !ok {
			return f, fmt.Errorf("unknown priority %q", v)
		}
		f.Priority = p
	}
	if v := q.Get("phase"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 3 {
			return f, fmt.Errorf("phase must be 1, 2 or 3")
		}
		f.FinalPhase = model.Phase(n)
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("since must be RFC3339")
		}
		f.Since = t
	}
	f.DegradedOnly = q.Get("degraded") == "true"

	f.Limit = 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("limit must be a positive integer")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

// requestLogger logs one line per request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
