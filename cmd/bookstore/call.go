package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	zipkintracer "github.com/openzipkin-contrib/zipkin-go-ottrace"
	"github.com/openzipkin-contrib/zipkin-go-ottrace/config"
	tracehttp "github.com/openzipkin-contrib/zipkin-go-ottrace/middleware/http"
	"github.com/openzipkin-contrib/zipkin-go-ottrace/models"
)

var callOpts struct {
	method  string
	async   bool
	span    string
	timeout time.Duration
	output  string
}

var callCmd = &cobra.Command{
	Use:   "call URL",
	Short: "Issue a traced request and print the recorded spans",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return call(cmd.Context(), cmd.OutOrStdout(), cfg, args[0])
	},
}

func init() {
	callCmd.Flags().StringVarP(&callOpts.method, "method", "X", http.MethodGet, "HTTP method")
	callCmd.Flags().BoolVar(&callOpts.async, "async", false, "issue the request on another goroutine")
	callCmd.Flags().StringVar(&callOpts.span, "span", "", "wrap the call in an active span with this name")
	callCmd.Flags().DurationVar(&callOpts.timeout, "timeout", 10*time.Second, "how long to wait for the response")
	callCmd.Flags().StringVarP(&callOpts.output, "output", "o", "yaml", "span output format: yaml or json")
	rootCmd.AddCommand(callCmd)
}

func call(ctx context.Context, out io.Writer, cfg *config.Config, url string) error {
	if cfg.ServiceName == config.Default().ServiceName {
		cfg.ServiceName = "bookstore-client"
	}
	// spans have to be printed, so keep them in memory
	cfg.ZipkinURL = ""

	tracing, err := cfg.NewTracing(newLogger("call"))
	if err != nil {
		return errors.Wrap(err, "setting up tracing")
	}
	defer tracing.Close()

	var scope *zipkintracer.Scope
	if callOpts.span != "" {
		scope, ctx = zipkintracer.StartActive(ctx, tracing.Tracer, callOpts.span)
		defer scope.Close()
	}

	req, err := http.NewRequestWithContext(ctx, callOpts.method, url, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")

	client := tracehttp.NewClient(tracing.Tracer, tracehttp.ClientTimeout(callOpts.timeout))
	var res *http.Response
	if callOpts.async {
		res, err = client.DoAsync(req).GetTimeout(callOpts.timeout)
	} else {
		res, err = client.Do(req)
	}
	if err != nil {
		return errors.Wrapf(err, "%s %s", callOpts.method, url)
	}
	body, err := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if err != nil {
		return errors.Wrap(err, "reading response")
	}
	fmt.Fprintf(out, "%s\n%s\n", res.Status, body)

	if scope != nil {
		scope.Close()
	}
	if err := tracing.Recorder.Flush(); err != nil {
		return err
	}
	return printSpans(out, models.FromSpanModels(tracing.Memory.AllSpans()))
}

func printSpans(out io.Writer, spans []models.Span) error {
	switch callOpts.output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(spans)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(spans)
	}
	return errors.Errorf("unknown output format %q", callOpts.output)
}
