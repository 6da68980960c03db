// Package main is the entry point for the calculator server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/keypad-calc/pkg/api"
	grpcapi "github.com/lemonberrylabs/keypad-calc/pkg/api/grpc"
	"github.com/lemonberrylabs/keypad-calc/pkg/config"
	"github.com/lemonberrylabs/keypad-calc/pkg/metrics"
	"github.com/lemonberrylabs/keypad-calc/pkg/store"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "calcd",
	Short: "Keypad calculator server (REST and gRPC)",
	RunE:  run,
}

func init() {
	rootCmd.Version = version + " (commit=" + commit + ", built=" + date + ")"
	rootCmd.SetVersionTemplate("calcd version {{.Version}}\n")

	rootCmd.Flags().String("config", "", "YAML configuration file (env CALC_CONFIG)")
	rootCmd.Flags().Int("port", 0, "HTTP server port (default 8787, env PORT)")
	rootCmd.Flags().Int("grpc-port", 0, "gRPC server port (default 8788, env GRPC_PORT)")
	rootCmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	rootCmd.Flags().Int("max-sessions", -1, "Maximum number of sessions, 0 for unlimited (default 1000, env MAX_SESSIONS)")
	rootCmd.Flags().Float64("rate-limit", -1, "Requests per second, 0 disables (env RATE_LIMIT)")
	rootCmd.Flags().String("scripts-dir", "", "Directory of YAML scripts to run at startup (env SCRIPTS_DIR)")
	rootCmd.Flags().Bool("access-log", false, "Log every HTTP request")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	configPath := os.Getenv("CALC_CONFIG")
	if v, _ := cmd.Flags().GetString("config"); v != "" {
		configPath = v
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if v, _ := cmd.Flags().GetInt("grpc-port"); v != 0 {
		cfg.GRPCPort = v
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.Host = v
	}
	if v, _ := cmd.Flags().GetInt("max-sessions"); v >= 0 {
		cfg.Sessions.Max = v
	}
	if v, _ := cmd.Flags().GetFloat64("rate-limit"); v >= 0 {
		cfg.RateLimit.Rate = v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	scriptsDir := os.Getenv("SCRIPTS_DIR")
	if v, _ := cmd.Flags().GetString("scripts-dir"); v != "" {
		scriptsDir = v
	}
	accessLog, _ := cmd.Flags().GetBool("access-log")

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}

	s := store.New(store.Options{
		MaxSessions:  cfg.Sessions.Max,
		HistoryLimit: cfg.Sessions.HistoryLimit,
	})
	server := api.New(s, api.Options{
		Metrics:   m,
		RateLimit: cfg.RateLimit.Rate,
		RateBurst: cfg.RateLimit.Burst,
		AccessLog: accessLog,
	})

	// Run startup scripts if specified
	if scriptsDir != "" {
		log.Printf("Running scripts from: %s", scriptsDir)
		if err := server.LoadScripts(context.Background(), scriptsDir); err != nil {
			log.Printf("Warning: failed to load scripts: %v", err)
		}
	}

	// Start gRPC server
	grpcServer := grpcapi.New(s, m)
	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr())
		if err := grpcServer.Serve(cfg.GRPCAddr()); err != nil {
			log.Fatalf("gRPC server error: %v", err)
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down calculator server...")
		grpcServer.GracefulStop()
		if err := server.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("Calculator server listening on %s (max sessions=%d, metrics=%t)", cfg.Addr(), cfg.Sessions.Max, cfg.Metrics)
	if cfg.RateLimit.Rate > 0 {
		log.Printf("Rate limit: %.2f req/s, burst %d", cfg.RateLimit.Rate, cfg.RateLimit.Burst)
	}
	return server.Listen(cfg.Addr())
}
