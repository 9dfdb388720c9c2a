package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-redis/redis"
	"github.com/hashicorp/vault/api"

	"github.com/chainstacklabs/contract-caller/internal/chain"
	"github.com/chainstacklabs/contract-caller/internal/config"
	"github.com/chainstacklabs/contract-caller/internal/contract"
	"github.com/chainstacklabs/contract-caller/internal/domain"
	"github.com/chainstacklabs/contract-caller/internal/keys"
	messageBroker "github.com/chainstacklabs/contract-caller/internal/message-broker"
	"github.com/chainstacklabs/contract-caller/internal/services"
	"github.com/chainstacklabs/contract-caller/internal/status"
)

func main() {
	enqueue := flag.Bool("enqueue", false, "publish the call to the queue instead of executing it directly")
	priority := flag.Int("priority", 2, "queue priority 1-3, only used with -enqueue")
	flag.Parse()

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

	logger := slog.New(slog.NewJSONHandler(os.Stderr, opts))
	slog.SetDefault(logger)

	slog.Info("Starting service...", "service name", config.GetApplicationName())

	if *enqueue {
		runEnqueue(config, *priority)
		return
	}

	runCall(config)
}

// runCall executes the configured contract call directly against the node
// and verifies the stored value afterwards.
func runCall(config *config.Config) {
	ctx := context.Background()

	chainCfg, err := config.Chain()
	if err != nil {
		slog.Error("Error resolving chain", "error", err)
		os.Exit(1)
	}

	client, err := chain.Dial(ctx, chainCfg.RPCURL, uint64(chainCfg.ID), chain.Options{
		DialTimeout: config.DialTimeout,
		CallTimeout: config.CallTimeout,
	})
	if err != nil {
		slog.Error("Failed to connect to the network", "url", chainCfg.RPCURL, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	// Reported but not acted upon, execution continues either way
	if err := client.CheckConnectivity(ctx); err != nil {
		fmt.Println("Connection Failed")
		slog.Warn("Connectivity check failed", "error", err)
	} else {
		fmt.Println(strings.Repeat("-", 50))
		fmt.Println("Connection Successful")
		fmt.Println(strings.Repeat("-", 50))
	}

	caller := common.HexToAddress(config.CallerAddress)
	if balance, err := client.BalanceAt(ctx, caller, nil); err == nil {
		slog.Debug("Caller balance", "caller", caller.Hex(), "balance", balance)
	}

	binding, err := newBinding(config)
	if err != nil {
		slog.Error("Failed to set up contract binding", "error", err)
		os.Exit(1)
	}

	keyProvider, err := newKeyProvider(config)
	if err != nil {
		slog.Error("Failed to set up key provider", "error", err)
		os.Exit(1)
	}

	submitter := services.NewSubmitterService(client, keyProvider, caller, config.TxWaitTimeout, config.TxPollInterval)

	fmt.Println("Saving the number")
	if _, err := submitter.SubmitCall(ctx, binding, config.CallFunction, config.CallArgs); err != nil {
		slog.Error("Contract call failed", "function", config.CallFunction, "error", err)
		os.Exit(1)
	}
	fmt.Println("Transaction successful")

	fmt.Println("Retrieving saved number...")
	value, err := submitter.ReadUint256(ctx, binding, config.VerifyFunction, nil)
	if err != nil {
		slog.Error("Failed to read back value", "function", config.VerifyFunction, "error", err)
		os.Exit(1)
	}
	fmt.Printf("The saved number is: %s\n", value.String())
}

// runEnqueue hands the call request to the worker fleet via the message
// broker instead of touching the node.
func runEnqueue(config *config.Config, priority int) {
	ctx := context.Background()

	if config.RabitMQUrl == "" || config.RedisUrl == "" {
		slog.Error("Enqueue mode requires RabbitMQ and Redis configuration")
		os.Exit(1)
	}

	req, err := domain.NewCallRequest(config.GetApplicationName(), priority, config.ChainId, config.ContractAddress, config.CallFunction, config.CallArgs)
	if err != nil {
		slog.Error("Failed to create call request", "error", err)
		os.Exit(1)
	}

	// Catch function name typos here rather than in the worker
	binding, err := newBinding(config)
	if err != nil {
		slog.Error("Failed to set up contract binding", "error", err)
		os.Exit(1)
	}
	if !binding.HasMethod(req.Function) {
		slog.Error("Function not defined in contract ABI", "function", req.Function)
		os.Exit(1)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr: config.RedisUrl, // Redis server address
		DB:   0,               // Default DB
	})
	defer redisClient.Close()

	if _, err := redisClient.Ping().Result(); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	statusStore := status.NewRedisStatusStore(redisClient, 0)

	id, err := statusStore.NextID(req.AppName)
	if err != nil {
		slog.Error("Failed to generate call id", "error", err)
		os.Exit(1)
	}
	req.Id = id

	if err := statusStore.MarkSubmitted(req.Id, ""); err != nil {
		slog.Error("Failed to record status", "id", req.Id, "error", err)
		os.Exit(1)
	}

	broker, err := messageBroker.NewRabbitMQ(config.RabitMQUrl, ctx)
	if err != nil {
		slog.Error("Failed to create message broker", "error", err)
		statusStore.MarkFailed(req.Id, "", err)
		os.Exit(1)
	}
	defer broker.Close()

	if err := broker.PublishObject(messageBroker.CallsExchange, req, req.Priority, ctx); err != nil {
		slog.Error("Failed to publish call request", "id", req.Id, "error", err)
		statusStore.MarkFailed(req.Id, "", err)
		os.Exit(1)
	}

	fmt.Printf("Call request %s queued\n", req.Id)
}

func newBinding(cfg *config.Config) (*contract.Binding, error) {
	abiJSON, err := cfg.ContractABI()
	if err != nil {
		return nil, err
	}
	if abiJSON == "" {
		abiJSON = contract.SimpleStorageABI
	}
	return contract.NewBindingFromJSON(cfg.ContractAddress, abiJSON)
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
