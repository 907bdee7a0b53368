package main

import (
	"flag"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	zipkintracer "github.com/openzipkin-contrib/zipkin-go-ottrace"
	"github.com/openzipkin-contrib/zipkin-go-ottrace/config"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bookstore",
	Short: "Traced bookstore service",
	Long: `bookstore serves a small catalogue over HTTP and traces every request
with an OpenTracing tracer reporting to Zipkin. The call command issues
traced requests against it and prints the spans it recorded.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	rootCmd.PersistentFlags().AddGoFlagSet(fs)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "tracing config file (YAML)")
}

func newLogger(name string) zipkintracer.Logger {
	return zipkintracer.NewLogrLogger(klog.NewKlogr().WithName(name))
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFile)
}
