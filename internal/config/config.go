package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/go-playground/validator/v10"

	"firefly/internal/identity"
	"firefly/internal/retry"
)

// EnvPrefix is prepended to every environment variable read by Load
const EnvPrefix = "FIREFLY_"

// ErrNoServiceKey is returned by SigningKey when no key is configured
var ErrNoServiceKey = errors.New("FIREFLY_SERVICE_KEY is not set")

type Config struct {
	// Validator gRPC endpoints
	DeployServiceURL  string `validate:"required,url"`
	ProposeServiceURL string `validate:"required,url"`

	// Observer HTTP endpoint used for explore-deploy queries
	ObserverURL string `validate:"required,url"`

	// Websocket APIs publishing node events
	ValidatorWSAPIURL string `validate:"required,url"`
	ObserverWSAPIURL  string `validate:"omitempty,url"`

	// Hex secp256k1 secret used to sign deploys ( optional for read-only use )
	ServiceKey string `validate:"omitempty,len=64,hexadecimal"`

	LogLevel string `validate:"oneof=debug info warn error"`
	APIPort  int    `validate:"min=1,max=65535"`

	// Postgres deploy journal ( empty disables the journal )
	DatabaseURL string

	// Wallets whose finalized deploys are journaled by the daemon
	TrackedWallets []string `validate:"dive,required"`

	DeployWait time.Duration `validate:"gt=0"`

	Retry retry.Config
}

// Load reads the configuration from FIREFLY_* environment variables.
// Call godotenv.Load first to pick up a .env file.
func Load() *Config {
	return &Config{
		DeployServiceURL:  getEnv("DEPLOY_SERVICE_URL", "http://localhost:40401"),
		ProposeServiceURL: getEnv("PROPOSE_SERVICE_URL", "http://localhost:40402"),
		ObserverURL:       getEnv("OBSERVER_URL", "http://localhost:40453"),
		ValidatorWSAPIURL: getEnv("VALIDATOR_WS_API_URL", "ws://localhost:40403"),
		ObserverWSAPIURL:  getEnv("OBSERVER_WS_API_URL", ""),
		ServiceKey:        strings.TrimPrefix(getEnv("SERVICE_KEY", ""), "0x"),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		APIPort:           getEnvAsInt("API_PORT", 8080),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		TrackedWallets:    getEnvAsList("TRACKED_WALLETS"),
		DeployWait:        time.Duration(getEnvAsInt("DEPLOY_WAIT_SEC", 60)) * time.Second,
		Retry: retry.Config{
			Enabled:      getEnvAsBool("RETRY_ENABLED", true),
			MaxRetries:   getEnvAsInt("RETRY_MAX_RETRIES", retry.Unbounded),
			InitialDelay: time.Duration(getEnvAsInt("RETRY_INITIAL_DELAY_SEC", 1)) * time.Second,
			MaxDelay:     time.Duration(getEnvAsInt("RETRY_MAX_DELAY_SEC", 64)) * time.Second,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
		}
		return err
	}

	if c.Retry.Enabled && c.Retry.InitialDelay > c.Retry.MaxDelay {
		return fmt.Errorf("invalid configuration: retry initial delay %s exceeds max delay %s",
			c.Retry.InitialDelay, c.Retry.MaxDelay)
	}

	if _, err := c.Wallets(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SigningKey parses ServiceKey
func (c *Config) SigningKey() (*secp256k1.PrivateKey, error) {
	if c.ServiceKey == "" {
		return nil, ErrNoServiceKey
	}
	return identity.ParsePrivateKeyHex(c.ServiceKey)
}

// Wallets parses TrackedWallets
func (c *Config) Wallets() ([]identity.WalletAddress, error) {
	wallets := make([]identity.WalletAddress, 0, len(c.TrackedWallets))
	for _, s := range c.TrackedWallets {
		addr, err := identity.ParseWalletAddress(s)
		if err != nil {
			return nil, fmt.Errorf("tracked wallet %q: %w", s, err)
		}
		wallets = append(wallets, addr)
	}
	return wallets, nil
}

// EventsURL is the websocket API the event bus listens on. The observer is preferred
// when configured since it sees finalization without proposing.
func (c *Config) EventsURL() string {
	if c.ObserverWSAPIURL != "" {
		return c.ObserverWSAPIURL
	}
	return c.ValidatorWSAPIURL
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(EnvPrefix + key); ok {
		return val
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	val, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt(key string, defaultVal int) int {
	val, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
