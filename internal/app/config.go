package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Checkout    CheckoutConfig
	Stripe      StripeConfig
	Printify    PrintifyConfig
	Auth        AuthConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// CheckoutConfig controls order pricing.
type CheckoutConfig struct {
	Currency          string `default:"usd" usage:"Order currency"`
	FlatShippingCents int64  `default:"599" usage:"Flat shipping charge in cents"`
	// TaxRate is a decimal fraction, e.g. "0.0825".
	TaxRate            string        `default:"0" usage:"Tax rate applied to the subtotal"`
	FulfillmentTimeout time.Duration `default:"30s" usage:"Timeout of the background fulfillment run"`
}

// StripeConfig holds payment processor credentials.
type StripeConfig struct {
	SecretKey     string        `usage:"Stripe secret key (STORE_STRIPE_SECRET_KEY)"`
	WebhookSecret string        `usage:"Stripe webhook signing secret (STORE_STRIPE_WEBHOOK_SECRET)"`
	Timeout       time.Duration `default:"20s" usage:"Stripe request timeout"`
	MaxRetries    int64         `default:"2" usage:"Stripe network retries"`
}

// PrintifyConfig holds fulfillment vendor settings.
type PrintifyConfig struct {
	Token          string        `usage:"Printify API token (STORE_PRINTIFY_TOKEN)"`
	BaseURL        string        `default:"https://api.printify.com" usage:"Printify API base URL"`
	ShopID         string        `usage:"Printify shop id; the first shop is used when empty"`
	Timeout        time.Duration `default:"15s" usage:"Printify request timeout"`
	ShippingMethod int           `default:"1" usage:"Printify shipping method"`
}

// AuthConfig holds identity settings.
type AuthConfig struct {
	JWTSecret    string `usage:"HS256 secret of hosted-auth session tokens (STORE_AUTH_JWT_SECRET)"`
	Audience     string `usage:"Expected session token audience"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (STORE_AUTH_API_KEY_PEPPER)"`
}

// RedisConfig enables shared rate-limit counters when Addr is set.
type RedisConfig struct {
	Addr     string `usage:"Redis address; in-memory rate limiting when empty"`
	Password string `usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database"`
}

// KafkaConfig enables order event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers; events are dropped when empty"`
	Topic   string   `default:"store.orders" usage:"Order events topic"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags, YAML
// config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(false, "")
}

// LoadCLIConfig is LoadConfig for tools that parse their own flags. A
// non-empty databaseURL overrides the loaded value.
func LoadCLIConfig(databaseURL string) (*Config, error) {
	return loadConfig(true, databaseURL)
}

func loadConfig(skipFlags bool, databaseURL string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		SkipFlags: skipFlags,
		Files:     []string{"config.yaml", "/etc/authorstore/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing or malformed settings.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if _, err := c.Checkout.taxRate(); err != nil {
		return err
	}
	if c.Checkout.FlatShippingCents < 0 {
		return errors.New("flat shipping cents must not be negative")
	}
	return nil
}

func (c CheckoutConfig) taxRate() (decimal.Decimal, error) {
	if c.TaxRate == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse tax rate %q", c.TaxRate)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, errors.Errorf("tax rate %s out of range [0, 1)", rate)
	}
	return rate, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
