package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/net/trace"

	zipkintracer "github.com/openzipkin-contrib/zipkin-go-ottrace"
	"github.com/openzipkin-contrib/zipkin-go-ottrace/bookstore"
	"github.com/openzipkin-contrib/zipkin-go-ottrace/config"
	"github.com/openzipkin-contrib/zipkin-go-ottrace/events"
	"github.com/openzipkin-contrib/zipkin-go-ottrace/models"
)

var serveOpts struct {
	addr  string
	delay time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the traced bookstore service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.addr, "addr", "127.0.0.1:8080", "listen address")
	serveCmd.Flags().DurationVar(&serveOpts.delay, "delay", 50*time.Millisecond, "simulated processing time")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := newLogger("bookstore")
	if cfg.HostPort == "" {
		cfg.HostPort = serveOpts.addr
	}

	tracing, err := cfg.NewTracing(logger,
		zipkintracer.WithObserver(zipkintracer.NewLoggingObserver(logger)),
		zipkintracer.WithObserver(events.NewNetTraceObserver("bookstore")),
	)
	if err != nil {
		return errors.Wrap(err, "setting up tracing")
	}
	defer func() {
		if err := tracing.Close(); err != nil {
			_ = logger.Log("msg", "closing recorder", "err", err)
		}
	}()

	store := bookstore.New(tracing.Tracer,
		bookstore.WithLogger(logger),
		bookstore.WithProcessingDelay(serveOpts.delay),
	)

	mux := http.NewServeMux()
	mux.Handle("/bookstore/", store.Handler())
	mux.HandleFunc("/debug/requests", trace.Traces)
	mux.HandleFunc("/debug/spans", spansHandler(tracing))

	srv := &http.Server{Addr: serveOpts.addr, Handler: mux}
	errc := make(chan error, 1)
	go func() {
		_ = logger.Log("msg", "listening", "addr", serveOpts.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "serving")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Wrap(srv.Shutdown(shutdownCtx), "shutting down")
}

// spansHandler lists the spans kept in memory when no Zipkin URL is set.
func spansHandler(tracing *config.Tracing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if tracing.Memory == nil {
			http.Error(w, "spans are shipped to zipkin", http.StatusNotFound)
			return
		}
		if err := tracing.Recorder.Flush(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.FromSpanModels(tracing.Memory.AllSpans()))
	}
}
