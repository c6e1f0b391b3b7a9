// Package main provides the CLI entry point for the PeerLink relay server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/peerlink-io/peerlink/internal/config"
	"github.com/peerlink-io/peerlink/internal/identity"
	"github.com/peerlink-io/peerlink/internal/loadtest"
	"github.com/peerlink-io/peerlink/internal/logging"
	"github.com/peerlink-io/peerlink/internal/node"
	"github.com/peerlink-io/peerlink/internal/wizard"
)

var (
	// Version is set at build time
	Version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "peerlink",
		Short: "PeerLink - WebRTC signaling relay server",
		Long: `PeerLink is a signaling relay for WebRTC session negotiation.

Clients register a unique identifier over a persistent WebSocket
connection and exchange offers, answers, and ICE candidates addressed
to other identifiers. The relay never inspects negotiation payloads.`,
		Version: Version,
	}

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(idCmd())
	rootCmd.AddCommand(benchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a configuration interactively",
		Long:  "Run the interactive setup wizard and write a configuration file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := wizard.New()
			if _, err := w.Run(); err != nil {
				return fmt.Errorf("setup failed: %w", err)
			}
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the relay server",
		Long: `Start the relay server. Without --config, defaults plus PEERLINK_*
environment overrides are used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			var err error
			if configPath != "" {
				cfg, err = config.Load(configPath)
			} else {
				cfg, err = config.FromEnv()
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

			n := node.New(cfg, logger, nil)
			if err := n.Start(); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}

			fmt.Printf("PeerLink listening on %s%s (key required)\n", n.Addr().String(), cfg.Server.Path)
			if cfg.Health.Enabled {
				fmt.Printf("Health endpoint: http://%s/health\n", cfg.Health.Address)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			sig := <-sigCh
			fmt.Printf("\nReceived signal %v, shutting down...\n", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := n.StopWithContext(ctx); err != nil {
				fmt.Printf("Shutdown error: %v\n", err)
				return err
			}

			fmt.Println("Relay stopped.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	return cmd
}

func validateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long:  "Parse and validate a configuration file without starting the server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			fmt.Printf("Config OK: %s\n", configPath)
			fmt.Printf("  Listener:  %s%s\n", cfg.ListenAddr(), cfg.Server.Path)
			fmt.Printf("  Discovery: %t\n", cfg.Server.AllowDiscovery)
			fmt.Printf("  Heartbeat: %s (evict after %s)\n", cfg.Relay.HeartbeatInterval, cfg.Relay.StalenessTimeout)
			fmt.Printf("  TLS:       %t\n", cfg.Server.TLS.Enabled())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")

	return cmd
}

func benchCmd() *cobra.Command {
	var (
		url         string
		key         string
		pairs       int
		payloadSize int
		duration    time.Duration
		churn       bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load-test a running relay",
		Long: `Drive synthetic signaling traffic against a running relay: pairs of
clients exchanging OFFER/ANSWER round trips, or connection churn with
--churn.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if churn {
				c := loadtest.NewChurnTester(url, key, pairs, duration)
				result, err := c.Run(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Churn: %d connects, %d errors in %s (%.1f conn/s)\n",
					result.Connects, result.ConnectErrors, result.Elapsed.Round(time.Millisecond),
					float64(result.Connects)/result.Elapsed.Seconds())
				return nil
			}

			g := loadtest.NewExchangeGenerator(url, key, pairs, payloadSize, duration)
			result, err := g.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Pairs:       %d started, %d failed to connect\n", result.PairsStarted, result.ConnectErrors)
			fmt.Printf("Round trips: %d (%.1f/s)\n", result.RoundTrips,
				float64(result.RoundTrips)/result.Elapsed.Seconds())
			if result.RoundTrips > 0 {
				fmt.Printf("Latency:     min %s / avg %s / max %s\n",
					result.MinLatency.Round(time.Microsecond),
					result.AvgLatency.Round(time.Microsecond),
					result.MaxLatency.Round(time.Microsecond))
			}
			if result.Errors > 0 {
				fmt.Printf("Errors:      %d\n", result.Errors)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "ws://127.0.0.1:9000/peerjs", "Relay WebSocket endpoint")
	cmd.Flags().StringVarP(&key, "key", "k", "peerjs", "Shared admission key")
	cmd.Flags().IntVarP(&pairs, "pairs", "p", 10, "Concurrent client pairs (or churn workers)")
	cmd.Flags().IntVar(&payloadSize, "payload", 512, "Synthetic payload size in bytes")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 10*time.Second, "Test duration")
	cmd.Flags().BoolVar(&churn, "churn", false, "Run connection churn instead of exchanges")

	return cmd
}

func idCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "id",
		Short: "Generate client identifiers",
		Long:  "Generate random identifiers in the same format the server assigns.",
		RunE: func(cmd *cobra.Command, args []string) error {
			for i := 0; i < count; i++ {
				fmt.Println(identity.Generate())
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of identifiers to generate")

	return cmd
}
