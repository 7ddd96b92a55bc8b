// Package api implements `chainsaw serve`: a small, read-only HTTP server
// that runs a trace on demand and returns the same JSON a CLI invocation
// would produce. There is no project registry or database — every request
// runs its own trace.Run against the entry path it names, exactly as a CLI
// invocation would, including normal cache reuse under the project root.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chainsaw-tool/chainsaw/internal/query"
	"github.com/chainsaw-tool/chainsaw/internal/trace"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
)

func statusColor(code int) string {
	switch {
	case code >= 500:
		return colorRed
	case code >= 400:
		return colorYellow
	case code >= 300:
		return colorCyan
	default:
		return colorGreen
	}
}

func methodColor(method string) string {
	switch method {
	case "GET":
		return colorGreen
	case "POST":
		return colorCyan
	default:
		return colorReset
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		fmt.Fprintf(os.Stdout, "%s%-7s%s %s %s%d%s %s%s%s\n",
			methodColor(r.Method), r.Method, colorReset,
			r.URL.Path,
			statusColor(status), status, colorReset,
			colorDim, time.Since(start), colorReset,
		)
	})
}

// NewServer builds the router for `chainsaw serve`.
func NewServer(log *slog.Logger, port string) *http.Server {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/trace", handleTrace(log))
	r.Get("/graph/chain", handleChain(log))

	return &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
}

// handleTrace runs a full trace.Run and returns its report, matching the
// CLI's --json schema exactly.
func handleTrace(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry := r.URL.Query().Get("entry")
		if entry == "" {
			writeError(w, http.StatusBadRequest, "entry query parameter is required")
			return
		}
		opts := trace.Options{
			Entry:          entry,
			Chain:          r.URL.Query().Get("chain"),
			IncludeDynamic: r.URL.Query().Get("include_dynamic") == "true",
			Top:            10,
			TopModules:     20,
		}
		rep, err := trace.Run(r.Context(), log, opts)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// handleChain answers a single chain query without the rest of a full
// trace report, for callers that only want the shortest import paths.
func handleChain(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry := r.URL.Query().Get("entry")
		pkg := r.URL.Query().Get("pkg")
		if entry == "" || pkg == "" {
			writeError(w, http.StatusBadRequest, "entry and pkg query parameters are required")
			return
		}
		includeDynamic := r.URL.Query().Get("include_dynamic") == "true"

		g, entryID, err := trace.BuildGraphForQuery(r.Context(), log, entry)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		chains := query.ShortestChains(g, entryID, pkg, includeDynamic, 3)
		resp := make([][]string, len(chains))
		for i, c := range chains {
			resp[i] = c.Paths(g)
		}
		writeJSON(w, http.StatusOK, map[string]any{"entry": entry, "package": pkg, "chains": resp})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Run serves until interrupted, then drains in-flight requests.
func Run(log *slog.Logger, port string) error {
	srv := NewServer(log, port)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("server started", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
