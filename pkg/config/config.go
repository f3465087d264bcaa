// Package config loads the facilitator's environment configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the payment facilitator service.
type Config struct {
	// Server Configuration
	Host string
	Port int

	// Chain Configuration
	ChainEndpoint string
	ChainID       int64
	TokenAddress  string
	TokenName     string
	TokenDecimals int

	// Facilitator signing identity
	FacilitatorSigningKey string
	FacilitatorAddress    string

	// Risk limits (USD, converted to token units using TokenDecimals)
	RiskMaxPerTransaction   int64
	RiskMaxPendingPerWallet int64
	RiskDailyLimitPerWallet int64

	// Settlement engine tuning
	SettlementMaxAttempts int
	SettlementRetryDelay  time.Duration
	SettlementTimeout     time.Duration

	// FCR monitor tuning
	FCREnabled             bool
	FCRPollInterval        time.Duration
	FCRRequireRoundZero    bool
	FCRMinTimeInPrepare    time.Duration
	FCRConfirmationTimeout time.Duration

	// Bond ledger
	BondContractAddress      string
	BondAlertThresholdPercent int

	// Deferred payment escrow
	EscrowContractAddress string

	// Persistence (enabled whenever PersistenceDB is non-empty, which it is by default)
	PersistenceEndpoint string
	PersistencePassword string
	PersistenceDB       string
	PersistencePrefix   string

	// Voucher store: loaded from VOUCHER_POSTGRES_DSN but not read by any
	// component; the voucher store is in-memory
	VoucherPostgresDSN string

	// Ambient
	MetricsAddr string
	LogLevel    string

	// Firestore audit trail (optional)
	FirestoreEnabled        bool
	FirebaseProjectID       string
	FirebaseCredentialsFile string
}

// loader threads an optional YAML overlay through the env-var reads so that
// a local facilitator.yaml can supply defaults without code changes, while
// the environment always wins.
type loader struct {
	overlay map[string]string
}

func newLoader() (*loader, error) {
	l := &loader{overlay: map[string]string{}}
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "facilitator.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("reading config overlay %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config overlay %s: %w", path, err)
	}
	for k, v := range raw {
		l.overlay[strings.ToUpper(k)] = fmt.Sprintf("%v", v)
	}
	return l, nil
}

func (l *loader) lookup(key string) (string, bool) {
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	if v, ok := l.overlay[key]; ok && v != "" {
		return v, true
	}
	return "", false
}

func (l *loader) getString(key, defaultValue string) string {
	if v, ok := l.lookup(key); ok {
		return v
	}
	return defaultValue
}

func (l *loader) getInt(key string, defaultValue int) int {
	if v, ok := l.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func (l *loader) getInt64(key string, defaultValue int64) int64 {
	if v, ok := l.lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func (l *loader) getBool(key string, defaultValue bool) bool {
	if v, ok := l.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func (l *loader) getDuration(key string, defaultValue time.Duration) time.Duration {
	if v, ok := l.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

// Load reads configuration from environment variables, falling back to an
// optional YAML overlay (CONFIG_FILE, default "facilitator.yaml") for any
// variable the environment doesn't set. Call Validate() afterward.
func Load() (*Config, error) {
	l, err := newLoader()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Host: l.getString("HOST", "0.0.0.0"),
		Port: l.getInt("PORT", 8402),

		ChainEndpoint: l.getString("CHAIN_ENDPOINT", ""),
		ChainID:       l.getInt64("CHAIN_ID", 314159),
		TokenAddress:  l.getString("TOKEN_ADDRESS", ""),
		TokenName:     l.getString("TOKEN_NAME", "USDFC"),
		TokenDecimals: l.getInt("TOKEN_DECIMALS", 18),

		FacilitatorSigningKey: l.getString("FACILITATOR_SIGNING_KEY", ""),
		FacilitatorAddress:    l.getString("FACILITATOR_ADDRESS", ""),

		RiskMaxPerTransaction:   l.getInt64("RISK_MAX_PER_TRANSACTION", 100),
		RiskMaxPendingPerWallet: l.getInt64("RISK_MAX_PENDING_PER_WALLET", 500),
		RiskDailyLimitPerWallet: l.getInt64("RISK_DAILY_LIMIT_PER_WALLET", 500),

		SettlementMaxAttempts: l.getInt("SETTLEMENT_MAX_ATTEMPTS", 5),
		SettlementRetryDelay:  l.getDuration("SETTLEMENT_RETRY_DELAY", 5*time.Second),
		SettlementTimeout:     l.getDuration("SETTLEMENT_TIMEOUT", 30*time.Second),

		FCREnabled:             l.getBool("FCR_ENABLED", true),
		FCRPollInterval:        l.getDuration("FCR_POLL_INTERVAL", time.Second),
		FCRRequireRoundZero:    l.getBool("FCR_REQUIRE_ROUND_ZERO", true),
		FCRMinTimeInPrepare:    l.getDuration("FCR_MIN_TIME_IN_PREPARE", 5*time.Second),
		FCRConfirmationTimeout: l.getDuration("FCR_CONFIRMATION_TIMEOUT", 60*time.Second),

		BondContractAddress:       l.getString("BOND_CONTRACT_ADDRESS", ""),
		BondAlertThresholdPercent: l.getInt("BOND_ALERT_THRESHOLD_PERCENT", 80),

		EscrowContractAddress: l.getString("ESCROW_CONTRACT_ADDRESS", ""),

		PersistenceEndpoint: l.getString("PERSISTENCE_ENDPOINT", ""),
		PersistencePassword: l.getString("PERSISTENCE_PASSWORD", ""),
		PersistenceDB:       l.getString("PERSISTENCE_DB", "./data/facilitator"),
		PersistencePrefix:   l.getString("PERSISTENCE_PREFIX", "facilitator"),

		VoucherPostgresDSN: l.getString("VOUCHER_POSTGRES_DSN", ""),

		MetricsAddr: l.getString("METRICS_ADDR", ":9402"),
		LogLevel:    l.getString("LOG_LEVEL", "info"),

		FirestoreEnabled:        l.getBool("FIRESTORE_ENABLED", false),
		FirebaseProjectID:       l.getString("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: l.getString("GOOGLE_APPLICATION_CREDENTIALS", ""),
	}

	return cfg, nil
}

// Validate checks that all required configuration is present for a
// production deployment.
func (c *Config) Validate() error {
	var errs []string

	if c.ChainEndpoint == "" {
		errs = append(errs, "CHAIN_ENDPOINT is required but not set")
	}
	if c.TokenAddress == "" {
		errs = append(errs, "TOKEN_ADDRESS is required but not set")
	}
	if c.FacilitatorSigningKey == "" {
		errs = append(errs, "FACILITATOR_SIGNING_KEY is required but not set")
	}
	if c.FacilitatorAddress == "" {
		errs = append(errs, "FACILITATOR_ADDRESS is required but not set")
	}
	if c.RiskMaxPerTransaction <= 0 {
		errs = append(errs, "RISK_MAX_PER_TRANSACTION must be positive")
	}
	if c.RiskMaxPendingPerWallet <= 0 {
		errs = append(errs, "RISK_MAX_PENDING_PER_WALLET must be positive")
	}
	if c.RiskDailyLimitPerWallet <= 0 {
		errs = append(errs, "RISK_DAILY_LIMIT_PER_WALLET must be positive")
	}
	if c.SettlementMaxAttempts <= 0 {
		errs = append(errs, "SETTLEMENT_MAX_ATTEMPTS must be positive")
	}
	if c.BondContractAddress != "" && c.BondAlertThresholdPercent <= 0 {
		errs = append(errs, "BOND_ALERT_THRESHOLD_PERCENT must be positive when bond is enabled")
	}
	if c.FirestoreEnabled && c.FirebaseProjectID == "" {
		errs = append(errs, "FIREBASE_PROJECT_ID is required when FIRESTORE_ENABLED=true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateForDevelopment performs relaxed validation suitable for local
// development, where the chain endpoint may point at a local node with no
// signing key configured yet.
func (c *Config) ValidateForDevelopment() error {
	var errs []string

	if c.ChainEndpoint == "" {
		errs = append(errs, "CHAIN_ENDPOINT is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("development configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// BondEnabled reports whether bond collateral commitment is configured.
func (c *Config) BondEnabled() bool {
	return c.BondContractAddress != ""
}

// EscrowEnabled reports whether the deferred-payment voucher path is configured.
func (c *Config) EscrowEnabled() bool {
	return c.EscrowContractAddress != ""
}

// PersistenceEnabled reports whether settlement/risk state should be backed
// by the durable KV store instead of kept purely in memory.
func (c *Config) PersistenceEnabled() bool {
	return c.PersistenceEndpoint != "" || c.PersistenceDB != ""
}
