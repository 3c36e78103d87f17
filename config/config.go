package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/layer-3/tollgate/core"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment variable read by Load
const EnvPrefix = "TOLLGATE_"

// MinJWTSecretLength is the shortest accepted HMAC secret
const MinJWTSecretLength = 32

type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	LogLevel    string `yaml:"log_level"`
	Production  bool   `yaml:"production"`
	RedisURL    string `yaml:"redis_url"`
	PostgresDSN string `yaml:"postgres_dsn"`

	Auth        AuthConfig        `yaml:"auth"`
	Payments    PaymentsConfig    `yaml:"payments"`
	Facilitator FacilitatorConfig `yaml:"facilitator"`
	Solana      SolanaConfig      `yaml:"solana"`
	RateLimits  RateLimitsConfig  `yaml:"rate_limits"`

	// Networks overrides entries of the built-in asset table
	Networks  map[core.Network]NetworkOverride `yaml:"networks"`
	Resources []Resource                       `yaml:"resources"`
}

type AuthConfig struct {
	JWTSecret            string        `yaml:"jwt_secret"`
	NonceTTL             time.Duration `yaml:"nonce_ttl"`
	SessionTTL           time.Duration `yaml:"session_ttl"`
	Domain               string        `yaml:"domain"`
	URI                  string        `yaml:"uri"`
	Statement            string        `yaml:"statement"`
	DefaultEVMNetwork    core.Network  `yaml:"default_evm_network"`
	DefaultSolanaNetwork core.Network  `yaml:"default_solana_network"`
}

type PaymentsConfig struct {
	DefaultNetwork       core.Network   `yaml:"default_network"`
	DefaultSolanaNetwork core.Network   `yaml:"default_solana_network"`
	AllowedNetworks      []core.Network `yaml:"allowed_networks"`
	MaxTimeoutSeconds    int            `yaml:"max_timeout_seconds"`
}

type FacilitatorConfig struct {
	URL           string        `yaml:"url"`
	APIKeyName    string        `yaml:"api_key_name"`
	APIKeySecret  string        `yaml:"api_key_secret"`
	Authorization string        `yaml:"authorization"`
	Timeout       time.Duration `yaml:"timeout"`
}

type SolanaConfig struct {
	RPCURL      string `yaml:"rpc_url"`
	FeePayerKey string `yaml:"fee_payer_key"`
}

type RateLimitsConfig struct {
	NonceRequests  int           `yaml:"nonce_requests"`
	VerifyRequests int           `yaml:"verify_requests"`
	Window         time.Duration `yaml:"window"`
}

// NetworkOverride replaces the non-empty fields of a built-in network
type NetworkOverride struct {
	Asset         string `yaml:"asset"`
	Decimals      int32  `yaml:"decimals"`
	EIP712Name    string `yaml:"eip712_name"`
	EIP712Version string `yaml:"eip712_version"`
}

// Resource is a route sold through the paywall
type Resource struct {
	Path        string         `yaml:"path"`
	PriceUSD    string         `yaml:"price_usd"`
	Description string         `yaml:"description"`
	MimeType    string         `yaml:"mime_type"`
	Networks    []core.Network `yaml:"networks"`
	PayTo       PayTo          `yaml:"pay_to"`
	Content     string         `yaml:"content"`
}

type PayTo struct {
	EVM    string `yaml:"evm"`
	Solana string `yaml:"solana"`
}

// Price parses PriceUSD
func (r Resource) Price() (decimal.Decimal, error) {
	return decimal.NewFromString(r.PriceUSD)
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		ListenAddr: ":9000",
		LogLevel:   "info",
		Auth: AuthConfig{
			NonceTTL:             5 * time.Minute,
			SessionTTL:           7 * 24 * time.Hour,
			Domain:               "localhost",
			Statement:            "Sign in with your wallet",
			DefaultEVMNetwork:    core.BaseMainnet,
			DefaultSolanaNetwork: core.SolanaMainnet,
		},
		Payments: PaymentsConfig{
			DefaultNetwork:       core.BaseMainnet,
			DefaultSolanaNetwork: core.SolanaDevnet,
			MaxTimeoutSeconds:    300,
		},
		Facilitator: FacilitatorConfig{
			URL:     "https://x402.org/facilitator",
			Timeout: 10 * time.Second,
		},
		Solana: SolanaConfig{
			RPCURL: "https://api.mainnet-beta.solana.com",
		},
		RateLimits: RateLimitsConfig{
			NonceRequests:  10,
			VerifyRequests: 20,
			Window:         time.Minute,
		},
	}
}

// Load builds the configuration from defaults, an optional .env file, an
// optional YAML file named by TOLLGATE_CONFIG_FILE and the environment, in
// that order of precedence (environment wins), then validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path, ok := lookup(EnvPrefix + "CONFIG_FILE"); ok && path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if cfg.Auth.URI == "" {
		cfg.Auth.URI = "https://" + cfg.Auth.Domain
	}
	if cfg.Production {
		cfg.Payments.DefaultNetwork = core.BaseMainnet
		cfg.Payments.DefaultSolanaNetwork = core.SolanaMainnet
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	network := func(name string, dst *core.Network) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = core.Network(v)
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("LISTEN_ADDR", &c.ListenAddr)
	str("LOG_LEVEL", &c.LogLevel)
	boolean("PRODUCTION", &c.Production)
	str("REDIS_URL", &c.RedisURL)
	str("POSTGRES_DSN", &c.PostgresDSN)

	str("JWT_SECRET", &c.Auth.JWTSecret)
	duration("NONCE_TTL", &c.Auth.NonceTTL)
	duration("SESSION_TTL", &c.Auth.SessionTTL)
	str("DOMAIN", &c.Auth.Domain)
	str("URI", &c.Auth.URI)
	network("DEFAULT_EVM_NETWORK", &c.Auth.DefaultEVMNetwork)
	network("DEFAULT_SOLANA_NETWORK", &c.Auth.DefaultSolanaNetwork)

	network("PAYMENT_DEFAULT_NETWORK", &c.Payments.DefaultNetwork)
	if v, ok := lookup(EnvPrefix + "ALLOWED_NETWORKS"); ok && v != "" {
		c.Payments.AllowedNetworks = nil
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				c.Payments.AllowedNetworks = append(c.Payments.AllowedNetworks, core.Network(n))
			}
		}
	}

	str("FACILITATOR_URL", &c.Facilitator.URL)
	str("FACILITATOR_API_KEY_NAME", &c.Facilitator.APIKeyName)
	str("FACILITATOR_API_KEY_SECRET", &c.Facilitator.APIKeySecret)
	str("FACILITATOR_AUTHORIZATION", &c.Facilitator.Authorization)
	duration("FACILITATOR_TIMEOUT", &c.Facilitator.Timeout)

	str("SOLANA_RPC_URL", &c.Solana.RPCURL)
	str("SOLANA_FEE_PAYER_KEY", &c.Solana.FeePayerKey)

	return errors.Join(errs...)
}

// NetworkTable returns the built-in networks with overrides applied,
// restricted to AllowedNetworks when set
func (c *Config) NetworkTable() core.NetworkTable {
	table := core.DefaultNetworks()
	for id, o := range c.Networks {
		info, ok := table[id]
		if !ok {
			continue
		}
		if o.Asset != "" {
			info.Asset = o.Asset
		}
		if o.Decimals > 0 {
			info.Decimals = o.Decimals
		}
		if o.EIP712Name != "" {
			info.EIP712Name = o.EIP712Name
		}
		if o.EIP712Version != "" {
			info.EIP712Version = o.EIP712Version
		}
		table[id] = info
	}
	if len(c.Payments.AllowedNetworks) > 0 {
		table = table.Restrict(c.Payments.AllowedNetworks)
	}
	return table
}

// Validate rejects configurations the services cannot start with
func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		errs = append(errs, fmt.Errorf("%sJWT_SECRET must be at least %d bytes", EnvPrefix, MinJWTSecretLength))
	}
	if c.Auth.NonceTTL <= 0 {
		errs = append(errs, errors.New("nonce ttl must be positive"))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	if c.Auth.Domain == "" {
		errs = append(errs, errors.New("domain is required"))
	}
	if c.Facilitator.URL == "" {
		errs = append(errs, errors.New("facilitator url is required"))
	}
	if (c.Facilitator.APIKeyName == "") != (c.Facilitator.APIKeySecret == "") {
		errs = append(errs, errors.New("facilitator api key name and secret must be set together"))
	}
	if c.Payments.MaxTimeoutSeconds < 0 {
		errs = append(errs, errors.New("max timeout seconds must not be negative"))
	}
	if c.Production {
		if c.RedisURL == "" {
			errs = append(errs, fmt.Errorf("%sREDIS_URL is required in production", EnvPrefix))
		}
		if c.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("%sPOSTGRES_DSN is required in production", EnvPrefix))
		}
	}

	table := c.NetworkTable()
	for _, id := range c.Payments.AllowedNetworks {
		if _, ok := core.DefaultNetworks().Lookup(id); !ok {
			errs = append(errs, fmt.Errorf("%w: %s", core.ErrUnsupportedNetwork, id))
		}
	}
	errs = append(errs,
		checkDefault("default evm network", c.Auth.DefaultEVMNetwork, core.FamilyEVM, table),
		checkDefault("default solana network", c.Auth.DefaultSolanaNetwork, core.FamilySolana, table),
		checkDefault("payment default network", c.Payments.DefaultNetwork, core.FamilyEVM, table),
		checkDefault("payment default solana network", c.Payments.DefaultSolanaNetwork, core.FamilySolana, table),
	)
	if c.Production {
		errs = append(errs,
			checkMainnet("default evm network", c.Auth.DefaultEVMNetwork, table),
			checkMainnet("default solana network", c.Auth.DefaultSolanaNetwork, table),
		)
	}

	seen := make(map[string]bool, len(c.Resources))
	for i, r := range c.Resources {
		if err := r.validate(); err != nil {
			errs = append(errs, fmt.Errorf("resources[%d]: %w", i, err))
		}
		if seen[r.Path] {
			errs = append(errs, fmt.Errorf("resources[%d]: duplicate path %s", i, r.Path))
		}
		seen[r.Path] = true
	}

	return errors.Join(errs...)
}

// checkDefault only checks membership and family. Production swaps testnet
// defaults for the family mainnet when requests are served.
func checkDefault(name string, id core.Network, family core.Family, table core.NetworkTable) error {
	info, ok := table.Lookup(id)
	if !ok {
		return fmt.Errorf("%s: %w: %s", name, core.ErrUnsupportedNetwork, id)
	}
	if info.Family() != family {
		return fmt.Errorf("%s: %s is not a %s network", name, id, family)
	}
	return nil
}

func checkMainnet(name string, id core.Network, table core.NetworkTable) error {
	if info, ok := table.Lookup(id); ok && info.Testnet {
		return fmt.Errorf("%s: %w in production: %s", name, core.ErrTestnetNotAllowed, id)
	}
	return nil
}

func (r Resource) validate() error {
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("path %q must start with /", r.Path)
	}
	price, err := r.Price()
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrInvalidPrice, r.PriceUSD)
	}
	if price.IsNegative() {
		return fmt.Errorf("%w: %s", core.ErrInvalidPrice, r.PriceUSD)
	}
	if r.PayTo.EVM == "" && r.PayTo.Solana == "" {
		return errors.New("pay_to needs an evm or solana address")
	}
	if r.PayTo.EVM != "" {
		if _, err := core.NormalizeAddress(r.PayTo.EVM, core.FamilyEVM); err != nil {
			return fmt.Errorf("pay_to.evm: %w", err)
		}
	}
	if r.PayTo.Solana != "" {
		if _, err := core.NormalizeAddress(r.PayTo.Solana, core.FamilySolana); err != nil {
			return fmt.Errorf("pay_to.solana: %w", err)
		}
	}
	return nil
}
