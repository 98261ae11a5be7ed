package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/config/configloader"
	"github.com/shopspring/decimal"
)

var _ configloader.Validator = (*Config)(nil)

const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type Config struct {
	HTTPServer config.HTTPConfig      `koanf:"server"`
	Backend    config.BackendConfig   `koanf:"backend"`
	Storage    StorageConfig          `koanf:"storage"`
	Catalog    CatalogConfig          `koanf:"catalog"`
	Checkout   CheckoutConfig         `koanf:"checkout"`
	Nats       config.NATSConfig      `koanf:"nats"`
	Log        config.LogConfig       `koanf:"log"`
	PProf      config.PProfConfig     `koanf:"pprof"`
	Telemetry  config.TelemetryConfig `koanf:"telemetry"`
	Shutdown   config.ShutdownConfig  `koanf:"shutdown"`
}

// StorageConfig selects where the session, cart and pending checkout survive restarts.
type StorageConfig struct {
	Driver   string                `koanf:"driver"`
	Dir      string                `koanf:"dir"`
	Redis    config.RedisConfig    `koanf:"redis"`
	Database config.DatabaseConfig `koanf:"database"`
}

type CatalogConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

type CheckoutConfig struct {
	TaxRate        string   `koanf:"taxrate"`
	InvoiceDir     string   `koanf:"invoicedir"`
	PaymentMethods []string `koanf:"paymentmethods"`
}

// Rate parses TaxRate. An empty value yields nil, which leaves the checkout default in place;
// an explicit "0" is a tax-free rate.
func (c *CheckoutConfig) Rate() (*decimal.Decimal, error) {
	if strings.TrimSpace(c.TaxRate) == "" {
		return nil, nil
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil {
		return nil, fmt.Errorf("invalid checkout tax rate %q: %w", c.TaxRate, err)
	}
	return &rate, nil
}

func (c *Config) String() string {
	var b strings.Builder

	b.WriteString("\n--- Server Configuration ---\n")
	b.WriteString(fmt.Sprintf("  server.port: %d\n", c.HTTPServer.Port))
	b.WriteString(fmt.Sprintf("  server.maxHeaderBytes: %d\n", c.HTTPServer.MaxHeaderBytes))
	b.WriteString(fmt.Sprintf("  server.timeout.read: %v\n", c.HTTPServer.Timeout.Read))
	b.WriteString(fmt.Sprintf("  server.timeout.write: %v\n", c.HTTPServer.Timeout.Write))
	b.WriteString(fmt.Sprintf("  server.timeout.idle: %v\n", c.HTTPServer.Timeout.Idle))
	b.WriteString(fmt.Sprintf("  server.timeout.readHeader: %v\n", c.HTTPServer.Timeout.ReadHeader))

	b.WriteString(c.Backend.String())

	b.WriteString("\n--- Storage Configuration ---\n")
	b.WriteString(fmt.Sprintf("  storage.driver: %s\n", c.Storage.Driver))
	switch c.Storage.Driver {
	case StorageFile:
		b.WriteString(fmt.Sprintf("  storage.dir: %s\n", c.Storage.Dir))
	case StorageRedis:
		b.WriteString(c.Storage.Redis.String())
	case StoragePostgres:
		b.WriteString(c.Storage.Database.String())
	}

	b.WriteString("\n--- Storefront Behavior ---\n")
	b.WriteString(fmt.Sprintf("  catalog.ttl: %s\n", c.Catalog.TTL))
	b.WriteString(fmt.Sprintf("  checkout.taxrate: %s\n", c.Checkout.TaxRate))
	b.WriteString(fmt.Sprintf("  checkout.invoicedir: %s\n", c.Checkout.InvoiceDir))
	b.WriteString(fmt.Sprintf("  checkout.paymentmethods: %s\n", strings.Join(c.Checkout.PaymentMethods, ",")))

	b.WriteString(c.Nats.String())

	b.WriteString("\n--- Observability & Logging ---\n")
	b.WriteString(fmt.Sprintf("  log.level: %s\n", c.Log.Level))
	b.WriteString(fmt.Sprintf("  log.format: %s\n", c.Log.Format))
	b.WriteString(fmt.Sprintf("  pprof.enabled: %t\n", c.PProf.Enabled))
	b.WriteString(fmt.Sprintf("  pprof.address: %s\n", c.PProf.Addr))
	b.WriteString(c.Telemetry.String())

	b.WriteString("\n--- Application Behavior ---\n")
	b.WriteString(fmt.Sprintf("  shutdown.timeout: %s\n", c.Shutdown.Timeout))

	return b.String()
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if err := c.HTTPServer.Validate(); err != nil {
		return err
	}
	if err := c.Backend.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if c.Catalog.TTL < 0 {
		return fmt.Errorf("catalog ttl must not be negative: %s", c.Catalog.TTL)
	}
	rate, err := c.Checkout.Rate()
	if err != nil {
		return err
	}
	if rate != nil && (rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1))) {
		return fmt.Errorf("checkout tax rate must be in [0, 1): %s", rate)
	}
	for _, method := range c.Checkout.PaymentMethods {
		if strings.TrimSpace(method) == "" {
			return fmt.Errorf("checkout payment methods must not contain blanks")
		}
	}
	if err := c.Nats.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.PProf.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if err := c.Shutdown.Validate(); err != nil {
		return err
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	switch c.Driver {
	case StorageMemory:
		return nil
	case StorageFile:
		if strings.TrimSpace(c.Dir) == "" {
			return fmt.Errorf("storage dir is required for the file driver")
		}
		return nil
	case StorageRedis:
		return c.Redis.Validate()
	case StoragePostgres:
		return c.Database.Validate()
	default:
		return fmt.Errorf("unknown storage driver %q", c.Driver)
	}
}
