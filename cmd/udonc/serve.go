package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/udon-lang/udonc/pkg/config"
	"github.com/udon-lang/udonc/pkg/pipeline"
)

type compileResponse struct {
	Assembly string   `json:"assembly"`
	Warnings []string `json:"warnings,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// runServe starts a thin compiler-as-a-service HTTP shell: POST /compile
// runs the pipeline over a JSON ast.Program body, GET /metrics exposes
// the Prometheus collectors, and GET /healthz is a liveness probe.
func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetUint16("port")
	if port == 0 {
		port = uint16(config.DefaultPort)
	}

	driver, cleanup, err := buildDriver(cmd, "udonc-serve")
	if err != nil {
		return err
	}
	defer cleanup()

	mux := http.NewServeMux()
	mux.HandleFunc("/compile", compileHandler(driver))
	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", driver.Metrics.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		printInfo(fmt.Sprintf("Serving on :%d", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			printError(err)
		}
	}()

	return waitForShutdown(srv)
}

func compileHandler(driver *pipeline.Driver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		defer r.Body.Close()

		prog, err := pipeline.ParseProgram(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		result, err := driver.Compile(r.Context(), prog)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(compileResponse{Assembly: result.Assembly, Warnings: result.Warnings})
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

// waitForShutdown waits for an interrupt signal and gracefully shuts
// down srv, grounded in cmd/glyph's waitForShutdown.
func waitForShutdown(srv *http.Server) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	printInfo("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
