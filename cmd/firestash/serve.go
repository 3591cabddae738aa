package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/firestash/pkg/engine"
	"github.com/cuemby/firestash/pkg/log"
	"github.com/cuemby/firestash/pkg/metrics"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a firestash engine as a local process",
	Long: `serve boots one engine instance for the given project/database,
optionally replays a scripted command file against it, exposes Prometheus
metrics over HTTP, and then blocks until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		scriptPath, _ := cmd.Flags().GetString("script")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg, err := engine.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		e := engine.New(cfg, nil, nil)
		defer e.Close()

		fmt.Printf("firestash engine started for project=%s database=%s region=%s\n", cfg.Project, cfg.Database, cfg.Region)

		if scriptPath != "" {
			f, err := os.Open(scriptPath)
			if err != nil {
				return fmt.Errorf("failed to open script: %w", err)
			}
			cmds, err := parseScript(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("failed to parse script: %w", err)
			}
			if err := runScript(e, cmds); err != nil {
				return fmt.Errorf("script failed: %w", err)
			}
		}

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				log.Logger.Error().Err(err).Msg("metrics server error")
			}
		}()
		fmt.Printf("metrics endpoint: http://%s/metrics\n", metricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("shutting down")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a firestash YAML config file")
	serveCmd.Flags().String("script", "", "Path to a scripted command file to replay at startup")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the Prometheus metrics endpoint")
}
