package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// ErrMissingPrivateKey is returned when the settlement signer key is absent.
var ErrMissingPrivateKey = errors.New("EVM_PRIVATE_KEY is required")

// Config holds all configuration values
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Blockchain BlockchainConfig
	Bridge     BridgeConfig
	Security   SecurityConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Env            string
	RequestTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode + "&prepare_threshold=0"
}

// RedisConfig holds Redis configuration. URL empty disables redis-backed features.
type RedisConfig struct {
	URL      string
	Password string
}

// BlockchainConfig holds signer keys and RPC settings
type BlockchainConfig struct {
	// PrivateKey signs settlement transactions. Required.
	PrivateKey string
	// BridgePrivateKey signs bridge burn/mint transactions.
	// Falls back to PrivateKey when unset.
	BridgePrivateKey string
	// DefaultRPCURL is used for any network without a dedicated override.
	DefaultRPCURL string
	// RPCOverrides maps CAIP-2 network ids to RPC URLs.
	RPCOverrides map[string]string
	// ReadTimeout bounds contract reads.
	ReadTimeout time.Duration
	// ReceiptTimeout bounds waiting for transaction receipts.
	ReceiptTimeout time.Duration
	// WriteTimeout bounds transaction submission.
	WriteTimeout time.Duration
	// DeployERC4337WithEIP6492 enables smart wallet deployment during settle.
	DeployERC4337WithEIP6492 bool
}

// BridgeConfig holds cross-chain bridging configuration
type BridgeConfig struct {
	Enabled          bool
	MaxAttempts      int
	RetryBase        time.Duration
	RecoveryInterval time.Duration
	StaleAfter       time.Duration
	AttestationURL   string
}

// SecurityConfig holds the admin token secret
type SecurityConfig struct {
	AdminJWTSecret string
	AdminTokenTTL  time.Duration
}

// rpcEnvByNetwork maps CAIP-2 ids to their RPC env var names.
var rpcEnvByNetwork = map[string]string{
	"eip155:1":        "ETHEREUM_RPC_URL",
	"eip155:8453":     "BASE_RPC_URL",
	"eip155:84532":    "BASE_SEPOLIA_RPC_URL",
	"eip155:11155111": "ETHEREUM_SEPOLIA_RPC_URL",
	"eip155:137":      "POLYGON_RPC_URL",
	"eip155:80002":    "POLYGON_AMOY_RPC_URL",
	"eip155:42161":    "ARBITRUM_RPC_URL",
	"eip155:421614":   "ARBITRUM_SEPOLIA_RPC_URL",
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "4022"),
			Env:            getEnv("SERVER_ENV", "development"),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "facilitator"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Blockchain: BlockchainConfig{
			PrivateKey:               getEnv("EVM_PRIVATE_KEY", ""),
			BridgePrivateKey:         getEnv("BRIDGE_EVM_PRIVATE_KEY", ""),
			DefaultRPCURL:            getEnv("EVM_RPC_URL", ""),
			RPCOverrides:             loadRPCOverrides(),
			ReadTimeout:              getEnvAsDuration("EVM_READ_TIMEOUT", 30*time.Second),
			ReceiptTimeout:           getEnvAsDuration("EVM_RECEIPT_TIMEOUT", 120*time.Second),
			WriteTimeout:             getEnvAsDuration("EVM_WRITE_TIMEOUT", 60*time.Second),
			DeployERC4337WithEIP6492: getEnvAsBool("DEPLOY_ERC4337_WITH_EIP6492", false),
		},
		Bridge: BridgeConfig{
			Enabled:          getEnvAsBool("CROSS_CHAIN_ENABLED", true),
			MaxAttempts:      getEnvAsInt("BRIDGE_MAX_ATTEMPTS", 3),
			RetryBase:        getEnvAsDuration("BRIDGE_RETRY_BASE", time.Second),
			RecoveryInterval: getEnvAsDuration("BRIDGE_RECOVERY_INTERVAL", 30*time.Second),
			StaleAfter:       getEnvAsDuration("BRIDGE_STALE_AFTER", 5*time.Minute),
			AttestationURL:   getEnv("BRIDGE_ATTESTATION_URL", "https://iris-api.circle.com"),
		},
		Security: SecurityConfig{
			AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
			AdminTokenTTL:  getEnvAsDuration("ADMIN_TOKEN_TTL", 24*time.Hour),
		},
	}

	if cfg.Blockchain.PrivateKey == "" {
		return nil, ErrMissingPrivateKey
	}
	if cfg.Blockchain.BridgePrivateKey == "" {
		cfg.Blockchain.BridgePrivateKey = cfg.Blockchain.PrivateKey
	}
	return cfg, nil
}

func loadRPCOverrides() map[string]string {
	overrides := make(map[string]string)
	for network, envKey := range rpcEnvByNetwork {
		if url := os.Getenv(envKey); url != "" {
			overrides[network] = url
		}
	}
	return overrides
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
