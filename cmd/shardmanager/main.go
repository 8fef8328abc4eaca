package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golemproject/golem/pkg/api"
	"github.com/golemproject/golem/pkg/config"
	"github.com/golemproject/golem/pkg/events"
	"github.com/golemproject/golem/pkg/health"
	"github.com/golemproject/golem/pkg/log"
	"github.com/golemproject/golem/pkg/metrics"
	"github.com/golemproject/golem/pkg/security"
	"github.com/golemproject/golem/pkg/shardmanager"
	"github.com/redis/go-redis/v9"
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
	Use:     "shardmanager",
	Short:   "Golem shard manager - owns the fleet's shard-to-pod routing table",
	Version: Version,
	RunE:    runShardManager,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("shardmanager version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("config", "", "Path to shard manager config file (YAML)")
	rootCmd.Flags().String("pod-id", "", "Pod identity, overrides config file")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

func runShardManager(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	podIDFlag, _ := cmd.Flags().GetString("pod-id")

	cfg := config.DefaultShardManager()
	if cfgPath != "" {
		var err error
		cfg, err = config.LoadShardManager(cfgPath, cfg)
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

	logger := log.WithPodID(cfg.PodID).With().Str("component", "shardmanager").Logger()

	// Blob storage is only needed here for the fleet CA; the routing
	// table itself lives in a shardmanager.Store, not BlobStorage.
	_, blob, err := config.BuildStorage(cfg.Backend, "./data/shardmanager", cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("build storage: %w", err)
	}
	defer blob.Close()

	ca := security.NewCertAuthority(blob)
	if err := ensureCertificate(ca, "shardmanager", cfg.PodID, cfg.ListenAddr); err != nil {
		return fmt.Errorf("bootstrap certificate: %w", err)
	}

	store, err := buildShardStore(cfg)
	if err != nil {
		return fmt.Errorf("build shard store: %w", err)
	}

	broker := events.NewBroker()
	clients := shardmanager.NewGRPCClients()

	ctx := context.Background()
	sm, err := shardmanager.New(ctx, store, clients, broker)
	if err != nil {
		return fmt.Errorf("create shard manager: %w", err)
	}

	healthLoop := shardmanager.NewHealthLoop(sm, clients, health.DefaultConfig())
	healthLoop.Start()
	defer healthLoop.Stop()

	srv, err := api.NewShardManagerServer(cfg.PodID, sm)
	if err != nil {
		return fmt.Errorf("create shard manager server: %w", err)
	}

	collector := metrics.NewCollector(nil, sm)
	collector.Start()
	defer collector.Stop()

	healthSrv := api.NewHealthServer(nil, sm)

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Start(cfg.ListenAddr); err != nil {
			errCh <- fmt.Errorf("shard manager gRPC server: %w", err)
		}
	}()
	go func() {
		if err := healthSrv.Start(cfg.HealthAddr); err != nil {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	logger.Info().Str("listen_addr", cfg.ListenAddr).Str("health_addr", cfg.HealthAddr).Msg("shard manager started")

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

// buildShardStore picks shardmanager's own Store implementation, kept
// separate from config.BuildStorage's IndexedStorage/BlobStorage pair
// since the routing table has its own persistence shape (one row per
// pod, not an indexed key-value store).
func buildShardStore(cfg config.ShardManager) (shardmanager.Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis backend requires redis_addr")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return shardmanager.NewRedisStore(client, cfg.NumberOfShards), nil
	default:
		return shardmanager.NewMemoryStore(cfg.NumberOfShards), nil
	}
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

	dnsNames := []string{fmt.Sprintf("%s-%s", podType, podID), "localhost"}
	cert, err := ca.IssuePodCertificate(podID, podType, dnsNames, nil)
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
