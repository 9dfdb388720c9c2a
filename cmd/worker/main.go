package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redis"
	"github.com/hashicorp/vault/api"

	"github.com/chainstacklabs/contract-caller/internal/chain"
	"github.com/chainstacklabs/contract-caller/internal/config"
	"github.com/chainstacklabs/contract-caller/internal/contract"
	"github.com/chainstacklabs/contract-caller/internal/keys"
	messageBroker "github.com/chainstacklabs/contract-caller/internal/message-broker"
	"github.com/chainstacklabs/contract-caller/internal/services"
	"github.com/chainstacklabs/contract-caller/internal/status"
)

func main() {
	config, err := config.NewConfig()
	if err != nil {
		slog.Error("Error loading config", "error", err)
		os.Exit(1)
	}

	logOpts := slog.LevelDebug
	if config.GetEnvironment() == "production" {
		logOpts = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logOpts,
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)

	slog.Info("Starting service...", "service name", config.GetApplicationName()+"-worker")

	if config.RabitMQUrl == "" || config.RedisUrl == "" {
		slog.Error("Worker requires RabbitMQ and Redis configuration")
		os.Exit(1)
	}

	chainCfg, err := config.Chain()
	if err != nil {
		slog.Error("Error resolving chain", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := chain.Dial(ctx, chainCfg.RPCURL, uint64(chainCfg.ID), chain.Options{
		DialTimeout: config.DialTimeout,
		CallTimeout: config.CallTimeout,
	})
	if err != nil {
		slog.Error("Failed to connect to the network", "url", chainCfg.RPCURL, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	caller := common.HexToAddress(config.CallerAddress)
	if balance, err := client.BalanceAt(ctx, caller, nil); err == nil {
		slog.Debug("Caller balance", "caller", caller.Hex(), "balance", balance)
	}

	keyProvider, err := newKeyProvider(config)
	if err != nil {
		slog.Error("Failed to set up key provider", "error", err)
		os.Exit(1)
	}

	abiJSON, err := config.ContractABI()
	if err != nil {
		slog.Error("Failed to load contract ABI", "error", err)
		os.Exit(1)
	}
	if abiJSON == "" {
		abiJSON = contract.SimpleStorageABI
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr: config.RedisUrl, // Redis server address
		DB:   0,               // Default DB
	})

	if _, err := redisClient.Ping().Result(); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	statusStore := status.NewRedisStatusStore(redisClient, 0)

	broker, err := messageBroker.NewRabbitMQ(config.RabitMQUrl, ctx)
	if err != nil {
		slog.Error("Failed to create message broker", "error", err)
		os.Exit(1)
	}

	submitter := services.NewSubmitterService(client, keyProvider, caller, config.TxWaitTimeout, config.TxPollInterval)

	priorities := []int{1, 2, 3}

	workerService := services.NewWorkerService(broker, submitter, statusStore, abiJSON, config.ChainId, priorities, ctx, config.WorkerPoolSize)
	workerService.SetupCallListener()

	// Listen for interrupt or termination signals for graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received
	sig := <-stopCh
	slog.Info("Received signal: " + sig.String() + ". Shutting down...")

	// Cancel first so broker consumers stop taking deliveries, then drain the workers.
	cancel()
	workerService.Shutdown()
	broker.Close()
	redisClient.Close()

	time.Sleep(2 * time.Second)
	slog.Info("Shutdown complete.")
}

func newKeyProvider(cfg *config.Config) (keys.ProviderInterface, error) {
	if cfg.KeySource == config.KeySourceVault {
		// Initialize Vault client
		vaultConfig := api.DefaultConfig()
		vaultConfig.Address = cfg.VaultAddress

		client, err := api.NewClient(vaultConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create Vault client: %w", err)
		}

		// Set Vault token
		client.SetToken(cfg.VaultToken)

		// Cache keys with TTL of 5 minutes
		return keys.NewVaultKeyProvider(client, cfg.VaultMount, 5*time.Minute), nil
	}

	return keys.NewStaticKeyProvider(cfg.CallerAddress, cfg.PrivateKey), nil
}
