package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/upcheck/upcheck"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the health-check worker daemon",
	Long: `Start an upcheck worker that probes the peers configured in the
config file.

The worker will:
- Acquire probe leases for peers no other worker is driving
- Probe each owned peer on its configured interval
- Maintain flap-damped up/down verdicts in the shared status store
- Serve JSON status reports and Prometheus metrics

Example:
  upcheck run --config /etc/upcheck/upcheck.json
  upcheck run --worker node-1 --status-addr :8080`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Run-specific flags
	runCmd.Flags().String("status-addr", "", "Status report HTTP address (overrides config)")
	runCmd.Flags().String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config)")

	// Bind to viper
	viper.BindPFlag("status_addr", runCmd.Flags().Lookup("status-addr"))
	viper.BindPFlag("metrics_addr", runCmd.Flags().Lookup("metrics-addr"))
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := upcheck.LoadConfigFromFile(cfgFile)
	if err != nil {
		return err
	}
	if id := getWorkerID(); cfg.WorkerID == "" {
		cfg.WorkerID = id
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []upcheck.MonitorOption{upcheck.Logger(logger)}
	if addr := viper.GetString("status_addr"); addr != "" {
		opts = append(opts, upcheck.StatusAddr(addr))
	}
	if addr := viper.GetString("metrics_addr"); addr != "" {
		opts = append(opts, upcheck.MetricsAddr(addr))
	}

	mon, err := upcheck.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	peers := 0
	for _, u := range cfg.Upstreams {
		peers += len(u.Peers)
	}
	fmt.Println("Starting upcheck worker...")
	fmt.Printf("  Worker ID:  %s\n", cfg.WorkerID)
	fmt.Printf("  Upstreams:  %d\n", len(cfg.Upstreams))
	fmt.Printf("  Peers:      %d\n", peers)
	if len(cfg.NATS.Servers) > 0 {
		fmt.Printf("  NATS:       %v\n", cfg.NATS.Servers)
	} else {
		fmt.Printf("  Store:      in-process\n")
	}
	fmt.Println()

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- mon.Run(ctx)
	}()

	fmt.Println("Worker started. Press Ctrl+C to stop.")

	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
	}

	fmt.Println("Worker stopped.")
	return nil
}
