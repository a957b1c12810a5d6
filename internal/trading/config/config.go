// Package config holds the daemon and per-pair engine configuration.
package config

import (
	"github.com/shopspring/decimal"

	"github.com/Aidin1998/triggerbook/internal/trading/events"
	"github.com/Aidin1998/triggerbook/internal/trading/trigger"
	"github.com/Aidin1998/triggerbook/pkg/errors"
)

// Config is the top-level configuration
type Config struct {
	LogLevel string        `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
	Tracing  TracingConfig `mapstructure:"tracing"`
	Events   EventsConfig  `mapstructure:"events"`
	Custody  CustodyConfig `mapstructure:"custody"`
	Pairs    []PairConfig  `mapstructure:"pairs" validate:"required,min=1,unique=Symbol,dive"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
	// OTelExport also exports OpenTelemetry instruments to stdout.
	OTelExport bool `mapstructure:"otel_export"`
}

// TracingConfig controls the OpenTelemetry tracer provider
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name" validate:"required_if=Enabled true"`
}

// EventsConfig selects where order notifications go
type EventsConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig enables the Kafka publisher
type KafkaConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	events.KafkaConfig `mapstructure:",squash"`
}

// Custody backends
const (
	CustodyMemory = "memory"
	CustodyRedis  = "redis"
)

// CustodyConfig selects the custody ledger
type CustodyConfig struct {
	Backend string      `mapstructure:"backend" validate:"required,oneof=memory redis"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addrs     []string `mapstructure:"addrs" validate:"omitempty,dive,required"`
	Password  string   `mapstructure:"password"`
	PoolSize  int      `mapstructure:"pool_size" validate:"gte=0"`
	KeyPrefix string   `mapstructure:"key_prefix"`
}

// PairConfig configures one pair's engine
type PairConfig struct {
	Symbol     string          `mapstructure:"symbol" validate:"required"`
	BaseAsset  string          `mapstructure:"base_asset" validate:"required"`
	QuoteAsset string          `mapstructure:"quote_asset" validate:"required,nefield=BaseAsset"`
	PriceStep  decimal.Decimal `mapstructure:"price_step"`
	// ScanWindow is in grid levels on each side of the current price level.
	ScanWindow        int64          `mapstructure:"scan_window" validate:"gte=0"`
	Budget            trigger.Budget `mapstructure:"budget"`
	MaxSlippageBps    int64          `mapstructure:"max_slippage_bps" validate:"gte=0,lte=10000"`
	GateSameDirection bool           `mapstructure:"gate_same_direction"`
	// Zero means unlimited.
	MinAmountIn decimal.Decimal `mapstructure:"min_amount_in"`
	MaxAmountIn decimal.Decimal `mapstructure:"max_amount_in"`

	Venue SimVenueConfig `mapstructure:"venue"`
}

// SimVenueConfig seeds the simulated venue the daemon runs against
type SimVenueConfig struct {
	InitialPrice decimal.Decimal `mapstructure:"initial_price"`
	HaircutBps   int64           `mapstructure:"haircut_bps" validate:"gte=0,lt=10000"`
	ImpactBps    int64           `mapstructure:"impact_bps" validate:"gte=0,lt=10000"`
}

// DefaultPair returns a pair configuration with the engine defaults applied.
func DefaultPair(symbol, base, quote string) PairConfig {
	return PairConfig{
		Symbol:         symbol,
		BaseAsset:      base,
		QuoteAsset:     quote,
		PriceStep:      decimal.NewFromInt(1),
		ScanWindow:     50,
		Budget:         trigger.Budget{Units: 64, CostPerExecution: 1},
		MaxSlippageBps: 50,
		Venue: SimVenueConfig{
			InitialPrice: decimal.NewFromInt(2000),
			ImpactBps:    5,
		},
	}
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Metrics:  MetricsConfig{Enabled: true, Addr: ":9102"},
		Tracing:  TracingConfig{Enabled: false, ServiceName: "triggerd"},
		Events: EventsConfig{Kafka: KafkaConfig{
			Enabled: false,
			KafkaConfig: events.KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "triggerbook.orders",
			},
		}},
		Custody: CustodyConfig{
			Backend: CustodyMemory,
			Redis: RedisConfig{
				Addrs:     []string{"localhost:6379"},
				PoolSize:  10,
				KeyPrefix: "triggerbook:custody",
			},
		},
		Pairs: []PairConfig{DefaultPair("ETH/USDC", "ETH", "USDC")},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	for i := range c.Pairs {
		if err := c.Pairs[i].validateAmounts(); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates one pair
func (p *PairConfig) Validate() error {
	if err := validateStruct(p); err != nil {
		return err
	}
	return p.validateAmounts()
}

// validateAmounts covers the decimal fields, which carry no struct tags.
func (p *PairConfig) validateAmounts() error {
	if !p.PriceStep.IsPositive() {
		return errors.Validation.Explain("price_step must be positive for pair %s", p.Symbol)
	}
	if p.MinAmountIn.IsNegative() || p.MaxAmountIn.IsNegative() {
		return errors.Validation.Explain("amount limits must not be negative for pair %s", p.Symbol)
	}
	if p.MaxAmountIn.IsPositive() && p.MinAmountIn.GreaterThan(p.MaxAmountIn) {
		return errors.Validation.Explain("min_amount_in exceeds max_amount_in for pair %s", p.Symbol)
	}
	return p.TriggerConfig().Validate()
}

// TriggerConfig derives the trigger engine configuration
func (p *PairConfig) TriggerConfig() trigger.Config {
	return trigger.Config{
		Pair:              p.Symbol,
		ScanWindow:        p.ScanWindow,
		Budget:            p.Budget,
		GateSameDirection: p.GateSameDirection,
	}
}

// Pair returns the configuration for a specific trading pair
func (c *Config) Pair(symbol string) (*PairConfig, bool) {
	for i := range c.Pairs {
		if c.Pairs[i].Symbol == symbol {
			return &c.Pairs[i], true
		}
	}
	return nil, false
}
