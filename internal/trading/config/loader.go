package config

import (
	"os"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Aidin1998/triggerbook/pkg/errors"
	"github.com/Aidin1998/triggerbook/pkg/logger"
)

// EnvPrefix prefixes every environment override, e.g. TRIGGERBOOK_LOG_LEVEL.
const EnvPrefix = "TRIGGERBOOK"

// Load reads the first existing files of paths over the defaults, applies
// environment overrides and validates the result. Missing files are skipped.
func Load(log *zap.Logger, paths ...string) (*Config, error) {
	log = logger.OrNop(log)
	v := viper.New()
	setupViper(v)
	setDefaults(v, Default())

	var loaded []string
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Debug("Config file not found, skipping", zap.String("path", path))
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Validation.Wrap(err).Explain("failed to load config file %s", path)
		}
		loaded = append(loaded, path)
	}
	if len(loaded) == 0 {
		log.Warn("No configuration files found, using defaults and environment variables")
	} else {
		log.Info("Loaded configuration files", zap.Strings("files", loaded))
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, errors.Validation.Wrap(err).Explain("failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupViper(v *viper.Viper) {
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
// Pairs are a list and only come from files.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.otel_export", d.Metrics.OTelExport)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("events.kafka.enabled", d.Events.Kafka.Enabled)
	v.SetDefault("events.kafka.brokers", d.Events.Kafka.Brokers)
	v.SetDefault("events.kafka.topic", d.Events.Kafka.Topic)
	v.SetDefault("custody.backend", d.Custody.Backend)
	v.SetDefault("custody.redis.addrs", d.Custody.Redis.Addrs)
	v.SetDefault("custody.redis.password", d.Custody.Redis.Password)
	v.SetDefault("custody.redis.pool_size", d.Custody.Redis.PoolSize)
	v.SetDefault("custody.redis.key_prefix", d.Custody.Redis.KeyPrefix)

	pairs := make([]map[string]any, 0, len(d.Pairs))
	for _, p := range d.Pairs {
		pairs = append(pairs, map[string]any{
			"symbol":           p.Symbol,
			"base_asset":       p.BaseAsset,
			"quote_asset":      p.QuoteAsset,
			"price_step":       p.PriceStep.String(),
			"scan_window":      p.ScanWindow,
			"budget":           map[string]any{"units": p.Budget.Units, "cost_per_execution": p.Budget.CostPerExecution},
			"max_slippage_bps": p.MaxSlippageBps,
			"venue": map[string]any{
				"initial_price": p.Venue.InitialPrice.String(),
				"haircut_bps":   p.Venue.HaircutBps,
				"impact_bps":    p.Venue.ImpactBps,
			},
		})
	}
	v.SetDefault("pairs", pairs)
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		decimalHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook decodes YAML numbers and strings into decimal.Decimal.
func decimalHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		if v == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(v)
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return data, nil
	}
}
