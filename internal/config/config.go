package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/spf13/viper"
)

// DateLayout is the layout of every date in configuration and CLI flags
const DateLayout = "2006-01-02"

type Config struct {
	Data     DataConfig     `mapstructure:"data"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Factor   FactorConfig   `mapstructure:"factor"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DataConfig locates the raw stock CSVs and the reference index inside storage.
type DataConfig struct {
	StockPrefix     string   `mapstructure:"stock_prefix"`
	IndexPath       string   `mapstructure:"index_path"`
	Encoding        string   `mapstructure:"encoding"` // "gbk", "gb18030" or "utf-8"
	ExcludePrefixes []string `mapstructure:"exclude_prefixes"`
	StartDate       string   `mapstructure:"start_date"`
	EndDate         string   `mapstructure:"end_date"`
}

type PipelineConfig struct {
	Workers int `mapstructure:"workers"` // 0 means NumCPU-1
}

type StorageConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// CacheConfig controls the read-through cache of merged batch results.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// BacktestConfig holds the backtest broker, timer and strategy settings.
type BacktestConfig struct {
	Cash       float64 `mapstructure:"cash"`
	Commission float64 `mapstructure:"commission"`
	StampDuty  float64 `mapstructure:"stamp_duty"`
	Slippage   float64 `mapstructure:"slippage"`
	NumStocks  int     `mapstructure:"num_stocks"`
	PeriodType string  `mapstructure:"period_type"` // "day", "week" or "month"
	NPeriods   int     `mapstructure:"n_periods"`

	// ma_crossover
	FastPeriod int    `mapstructure:"fast_period"`
	SlowPeriod int    `mapstructure:"slow_period"`
	MAType     string `mapstructure:"ma_type"` // "sma" or "ema"
}

// FactorConfig holds single-factor preprocessing settings.
type FactorConfig struct {
	WinsorizeN float64 `mapstructure:"winsorize_n"`
	Output     string  `mapstructure:"output"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

// Load reads configuration from file, layered over Defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.SetEnvPrefix("QUANTLAB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data.stock_prefix", d.Data.StockPrefix)
	v.SetDefault("data.index_path", d.Data.IndexPath)
	v.SetDefault("data.encoding", d.Data.Encoding)
	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.prefix", d.Cache.Prefix)
	v.SetDefault("backtest.cash", d.Backtest.Cash)
	v.SetDefault("backtest.commission", d.Backtest.Commission)
	v.SetDefault("backtest.stamp_duty", d.Backtest.StampDuty)
	v.SetDefault("backtest.slippage", d.Backtest.Slippage)
	v.SetDefault("backtest.num_stocks", d.Backtest.NumStocks)
	v.SetDefault("backtest.period_type", d.Backtest.PeriodType)
	v.SetDefault("backtest.n_periods", d.Backtest.NPeriods)
	v.SetDefault("backtest.fast_period", d.Backtest.FastPeriod)
	v.SetDefault("backtest.slow_period", d.Backtest.SlowPeriod)
	v.SetDefault("backtest.ma_type", d.Backtest.MAType)
	v.SetDefault("factor.winsorize_n", d.Factor.WinsorizeN)
	v.SetDefault("factor.output", d.Factor.Output)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Data: DataConfig{
			StockPrefix: "stock",
			IndexPath:   "index/sh000001.csv",
			Encoding:    "gbk",
		},
		Storage: StorageConfig{
			Type: "localfs",
			Path: "./data",
		},
		Cache: CacheConfig{
			Enabled: true,
			Prefix:  "cache",
		},
		Backtest: BacktestConfig{
			Cash:       1000000,
			Commission: 0.0015,
			StampDuty:  0.001,
			Slippage:   0.0001,
			NumStocks:  5,
			PeriodType: "week",
			NPeriods:   1,
			FastPeriod: 10,
			SlowPeriod: 90,
			MAType:     "sma",
		},
		Factor: FactorConfig{
			WinsorizeN: 3,
			Output:     "factor.csv",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  1,
			MaxBackups: 10,
		},
	}
}

// Window parses the configured date range. Zero times mean unbounded.
func (d DataConfig) Window() (start, end time.Time, err error) {
	if d.StartDate != "" {
		if start, err = time.Parse(DateLayout, d.StartDate); err != nil {
			return start, end, fmt.Errorf("invalid start_date: %w", err)
		}
	}
	if d.EndDate != "" {
		if end, err = time.Parse(DateLayout, d.EndDate); err != nil {
			return start, end, fmt.Errorf("invalid end_date: %w", err)
		}
	}
	return start, end, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	start, end, err := c.Data.Window()
	if err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("end_date %s is before start_date %s", c.Data.EndDate, c.Data.StartDate))
	}

	switch strings.ToLower(c.Data.Encoding) {
	case "", "gbk", "gb18030", "utf-8", "utf8":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unsupported encoding %q", c.Data.Encoding))
	}

	if c.Pipeline.Workers < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("workers cannot be negative, got %d", c.Pipeline.Workers))
	}

	switch c.Storage.Type {
	case "localfs":
		if c.Storage.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage path required when type is localfs"))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 bucket required when type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	// Backtest validation
	if c.Backtest.NumStocks < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("num_stocks must be positive, got %d", c.Backtest.NumStocks))
	}
	if c.Backtest.NPeriods < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("n_periods must be positive, got %d", c.Backtest.NPeriods))
	}
	switch c.Backtest.PeriodType {
	case "day", "week", "month":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("period_type must be day, week or month, got %q", c.Backtest.PeriodType))
	}
	if c.Backtest.Commission < 0 || c.Backtest.StampDuty < 0 || c.Backtest.Slippage < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("commission, stamp_duty and slippage cannot be negative"))
	}
	if c.Backtest.FastPeriod < 1 || c.Backtest.FastPeriod >= c.Backtest.SlowPeriod {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fast_period must be positive and below slow_period, got %d/%d",
				c.Backtest.FastPeriod, c.Backtest.SlowPeriod))
	}

	return nil
}
