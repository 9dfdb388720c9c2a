package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const Environment = "GO_ENV"
const RabbitMQUrlKey = "RABBITMQ_URL"
const RabbitMQUsernameKey = "RABBITMQ_USERNAME"
const RabbitMQUrlPasswordKey = "RABBITMQ_PASSWORD"
const RedisUrlKey = "REDIS_URL"

const VaultAddresskey = "VAULT_ADDR"
const VaultTokenKey = "VAULT_TOKEN"
const VaultMountKey = "VAULT_MOUNT"

const ChainIdKey = "CHAIN_ID"
const ChainsConfigPathKey = "CHAINS_CONFIG_PATH"
const ContractAddressKey = "CONTRACT_ADDRESS"
const ContractABIPathKey = "CONTRACT_ABI_PATH"
const CallerAddressKey = "CALLER_ADDRESS"

const KeySourceKey = "KEY_SOURCE"
const PrivateKeyKey = "PRIVATE_KEY"

const CallFunctionKey = "CALL_FUNCTION"
const CallArgsKey = "CALL_ARGS"
const VerifyFunctionKey = "VERIFY_FUNCTION"

const DialTimeoutKey = "DIAL_TIMEOUT_SECONDS"
const CallTimeoutKey = "CALL_TIMEOUT_SECONDS"
const TxWaitTimeoutKey = "TX_WAIT_TIMEOUT_SECONDS"
const TxPollIntervalKey = "TX_POLL_INTERVAL_SECONDS"
const WorkerPoolSizeKey = "WORKER_POOL_SIZE"

const KeySourceStatic = "static"
const KeySourceVault = "vault"

// ChainConfig represents the configuration for a single blockchain network.
type ChainConfig struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"` // e.g., "evm", "solana"
	RPCURL string `json:"rpc_url"`
}

// ChainConfigs holds every network the service knows about.
type ChainConfigs struct {
	Chains []ChainConfig `json:"chains"`
}

type Config struct {
	Env        string
	RabitMQUrl string
	RedisUrl   string

	VaultAddress string
	VaultToken   string
	VaultMount   string

	ChainId         int
	ContractAddress string
	ContractABIPath string
	CallerAddress   string

	KeySource  string
	PrivateKey string

	CallFunction   string
	CallArgs       []string
	VerifyFunction string

	DialTimeout    time.Duration
	CallTimeout    time.Duration
	TxWaitTimeout  time.Duration
	TxPollInterval time.Duration
	WorkerPoolSize int

	ChainConfigs *ChainConfigs
}

func NewConfig() (*Config, error) {

	if _, err := os.Stat(".env"); err == nil {
		// Load environment variables from the .env file
		if err := godotenv.Load(); err != nil {
			slog.Error("Error loading .env file", "error", err)
			return nil, err
		}
	}

	chainsPath := os.Getenv(ChainsConfigPathKey)
	if chainsPath == "" {
		chainsPath = "./configs/chains.json"
	}

	chainConfigs, err := loadChainConfig(chainsPath)
	if err != nil {
		slog.Error("Error loading chain config", "error", err)
		return nil, err
	}

	env := os.Getenv(Environment)
	chainId := intEnv(ChainIdKey, 0)
	contractAddress := os.Getenv(ContractAddressKey)
	callerAddress := os.Getenv(CallerAddressKey)

	//Error loading environment variables
	if env == "" ||
		chainId == 0 ||
		contractAddress == "" ||
		callerAddress == "" {
		slog.Error("Error loading data from environment")
		return nil, fmt.Errorf("error loading data from environment")
	}

	keySource := os.Getenv(KeySourceKey)
	if keySource == "" {
		keySource = KeySourceStatic
	}

	privateKey := os.Getenv(PrivateKeyKey)
	vaultAddress := os.Getenv(VaultAddresskey)
	vaultToken := os.Getenv(VaultTokenKey)
	vaultMount := os.Getenv(VaultMountKey)
	if vaultMount == "" {
		vaultMount = "private-keys"
	}

	switch keySource {
	case KeySourceStatic:
		if privateKey == "" {
			slog.Error("Error loading data from environment", "missing", PrivateKeyKey)
			return nil, fmt.Errorf("key source %q requires %s", keySource, PrivateKeyKey)
		}
	case KeySourceVault:
		if vaultAddress == "" || vaultToken == "" {
			slog.Error("Error loading data from environment", "missing", VaultAddresskey+","+VaultTokenKey)
			return nil, fmt.Errorf("key source %q requires %s and %s", keySource, VaultAddresskey, VaultTokenKey)
		}
	default:
		return nil, fmt.Errorf("unknown key source %q", keySource)
	}

	rabitMQUsername := os.Getenv(RabbitMQUsernameKey)
	rabitMQPassword := os.Getenv(RabbitMQUrlPasswordKey)
	rabitMQUrl := os.Getenv(RabbitMQUrlKey)
	if rabitMQUrl != "" {
		rabitMQUrl = "amqp://" + rabitMQUsername + ":" + rabitMQPassword + "@" + rabitMQUrl
	}

	callFunction := os.Getenv(CallFunctionKey)
	if callFunction == "" {
		callFunction = "saveNumber"
	}
	// An explicitly empty CALL_ARGS means a zero-argument call, only an
	// unset variable falls back to the default.
	rawArgs, hasArgs := os.LookupEnv(CallArgsKey)
	callArgs := splitArgs(rawArgs)
	if !hasArgs {
		callArgs = []string{"12"}
	}
	verifyFunction := os.Getenv(VerifyFunctionKey)
	if verifyFunction == "" {
		verifyFunction = "getNumber"
	}

	return &Config{
		Env:             env,
		RabitMQUrl:      rabitMQUrl,
		RedisUrl:        os.Getenv(RedisUrlKey),
		VaultAddress:    vaultAddress,
		VaultToken:      vaultToken,
		VaultMount:      vaultMount,
		ChainId:         chainId,
		ContractAddress: contractAddress,
		ContractABIPath: os.Getenv(ContractABIPathKey),
		CallerAddress:   callerAddress,
		KeySource:       keySource,
		PrivateKey:      privateKey,
		CallFunction:    callFunction,
		CallArgs:        callArgs,
		VerifyFunction:  verifyFunction,
		DialTimeout:     time.Duration(intEnv(DialTimeoutKey, 10)) * time.Second,
		CallTimeout:     time.Duration(intEnv(CallTimeoutKey, 30)) * time.Second,
		TxWaitTimeout:   time.Duration(intEnv(TxWaitTimeoutKey, 120)) * time.Second,
		TxPollInterval:  time.Duration(intEnv(TxPollIntervalKey, 5)) * time.Second,
		WorkerPoolSize:  intEnv(WorkerPoolSizeKey, 10),
		ChainConfigs:    chainConfigs,
	}, nil
}

// loadChainConfig reads the network catalog from the specified JSON file.
func loadChainConfig(filePath string) (*ChainConfigs, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %v", err)
	}
	defer file.Close()

	bytes, err := ioutil.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var config ChainConfigs
	err = json.Unmarshal(bytes, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %v", err)
	}

	return &config, nil
}

// Chain returns the configured network. Only EVM chains can be executed
// against, anything else in the catalog is rejected here.
func (s *Config) Chain() (*ChainConfig, error) {
	for i := range s.ChainConfigs.Chains {
		chain := &s.ChainConfigs.Chains[i]
		if chain.ID != s.ChainId {
			continue
		}
		if chain.Type != "evm" {
			return nil, fmt.Errorf("unsupported chain type %q for chain %d", chain.Type, chain.ID)
		}
		return chain, nil
	}
	return nil, fmt.Errorf("chain %d not found in chains config", s.ChainId)
}

// ContractABI returns the ABI JSON configured via file, or "" when the
// built-in contract ABI should be used.
func (s *Config) ContractABI() (string, error) {
	if s.ContractABIPath == "" {
		return "", nil
	}
	bytes, err := ioutil.ReadFile(s.ContractABIPath)
	if err != nil {
		return "", fmt.Errorf("failed to read contract ABI file: %v", err)
	}
	return string(bytes), nil
}

func (s *Config) GetEnvironment() string {
	return s.Env
}

func (s *Config) GetApplicationName() string {
	return "contract-caller"
}

func intEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer in environment, using fallback", "key", key, "value", raw)
		return fallback
	}
	return value
}

func splitArgs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	args := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			args = append(args, part)
		}
	}
	return args
}
