package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golemproject/golem/pkg/api"
	"github.com/golemproject/golem/pkg/config"
	"github.com/golemproject/golem/pkg/events"
	"github.com/golemproject/golem/pkg/log"
	"github.com/golemproject/golem/pkg/metrics"
	"github.com/golemproject/golem/pkg/scheduler"
	"github.com/golemproject/golem/pkg/security"
	"github.com/golemproject/golem/pkg/update"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "executor",
	Short:   "Golem executor - hosts a shard of the fleet's workers",
	Version: Version,
	RunE:    runExecutor,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("executor version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("config", "", "Path to executor config file (YAML)")
	rootCmd.Flags().String("pod-id", "", "Pod identity, overrides config file")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

func runExecutor(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	podIDFlag, _ := cmd.Flags().GetString("pod-id")

	cfg := config.DefaultExecutor()
	if cfgPath != "" {
		var err error
		cfg, err = config.LoadExecutor(cfgPath, cfg)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if podIDFlag != "" {
		cfg.PodID = podIDFlag
	}
	if cfg.PodID == "" {
		return fmt.Errorf("pod_id must be set (config file or --pod-id)")
	}

	logger := log.WithPodID(cfg.PodID).With().Str("component", "executor").Logger()

	indexed, blob, err := config.BuildStorage(cfg.Backend, cfg.DataDir, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("build storage: %w", err)
	}
	defer indexed.Close()
	defer blob.Close()

	ca := security.NewCertAuthority(blob)
	if err := ensureCertificate(ca, "executor", cfg.PodID, cfg.ListenAddr); err != nil {
		return fmt.Errorf("bootstrap certificate: %w", err)
	}

	oplogs := config.BuildOplogs(indexed, blob, cfg.OplogArchive)
	workers := scheduler.NewRegistry()
	broker := events.NewBroker()
	loader := config.BlobComponentLoader(blob)
	updater := update.New(oplogs, blob, loader)

	scheduleStore := scheduler.NewMemoryScheduleStore()
	sched := scheduler.NewScheduler(scheduleStore, workers)
	sched.Start()
	defer sched.Stop()

	retryPolicy := cfg.RetryPolicy.ToTypes()

	srv, err := api.NewExecutorServer(cfg.PodID, api.ExecutorConfig{
		Workers:        workers,
		Scheduler:      sched,
		Oplogs:         oplogs,
		Blob:           blob,
		LoadComponent:  loader,
		Updater:        updater,
		Events:         broker,
		RetryPolicy:    retryPolicy,
		NumberOfShards: cfg.NumberOfShards,
	})
	if err != nil {
		return fmt.Errorf("create executor server: %w", err)
	}

	collector := metrics.NewCollector(workers, nil)
	collector.Start()
	defer collector.Stop()

	health := api.NewHealthServer(workers, nil)

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Start(cfg.ListenAddr); err != nil {
			errCh <- fmt.Errorf("executor gRPC server: %w", err)
		}
	}()
	go func() {
		if err := health.Start(cfg.HealthAddr); err != nil {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	logger.Info().Str("listen_addr", cfg.ListenAddr).Str("health_addr", cfg.HealthAddr).Msg("executor started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
	}

	srv.Stop()
	logger.Info().Msg("shutdown complete")
	return nil
}

// ensureCertificate loads or initializes the fleet CA in blob storage
// and issues this pod's certificate if one doesn't already exist on
// disk, following warren's manager.go initializeCA bootstrap sequence.
func ensureCertificate(ca *security.CertAuthority, podType, podID, bindAddr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ca.LoadFromStore(ctx); err != nil {
		if err := ca.Initialize(); err != nil {
			return fmt.Errorf("initialize CA: %w", err)
		}
		if err := ca.SaveToStore(ctx); err != nil {
			return fmt.Errorf("save CA: %w", err)
		}
	}

	certDir, err := security.GetCertDir(podType, podID)
	if err != nil {
		return fmt.Errorf("get cert directory: %w", err)
	}
	if security.CertExists(certDir) {
		return nil
	}

	var ipAddresses []net.IP
	if host, _, err := net.SplitHostPort(bindAddr); err == nil {
		if ip := net.ParseIP(host); ip != nil && !ip.IsUnspecified() {
			ipAddresses = []net.IP{ip}
		}
	}
	dnsNames := []string{fmt.Sprintf("%s-%s", podType, podID), "localhost"}

	cert, err := ca.IssuePodCertificate(podID, podType, dnsNames, ipAddresses)
	if err != nil {
		return fmt.Errorf("issue pod certificate: %w", err)
	}
	if err := security.SaveCertToFile(cert, certDir); err != nil {
		return fmt.Errorf("save certificate: %w", err)
	}
	if err := security.SaveCACertToFile(ca.GetRootCACert(), certDir); err != nil {
		return fmt.Errorf("save CA certificate: %w", err)
	}
	return nil
}
