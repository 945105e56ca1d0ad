package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pulkyeet/arb-engine/internal/arbitrage"
	"github.com/pulkyeet/arb-engine/internal/gas"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL   string
	LogLevel string

	Base     string
	Quote    string
	Triangle []string

	MinProfitThreshold float64
	ScreenThreshold    float64
	BoundsLower        float64
	BoundsUpper        float64
	TrialAmounts       []float64
	Workers            int
	ScanTimeout        time.Duration

	GasSpeed        string
	CostUnit        string
	ApprovalGas     uint64
	SwapGas         uint64
	SafetyMargin    float64
	ETHUSD          float64
	FallbackGwei    map[string]uint64
	GasPriceMaxAge  time.Duration
	FixedCost       float64
	UseGasEstimator bool

	PoolsFile      string
	DBPath         string
	Record         bool
	Out            string
	InitialCapital float64
	Interval       time.Duration
	CacheSize      int
}

// Load merges config file, environment variables, and flags into Config.
// Environment variables use the ARB_ prefix, e.g. ARB_MIN_PROFIT.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	det := arbitrage.DefaultConfig()
	gc := gas.DefaultConfig()

	v.SetDefault("log-level", "info")
	v.SetDefault("base", "ETH")
	v.SetDefault("quote", "USDC")
	v.SetDefault("triangle", []string{"USDC", "USDT", "DAI"})
	v.SetDefault("min-profit", det.MinProfitThreshold)
	v.SetDefault("screen-threshold", det.ScreenThreshold)
	v.SetDefault("bounds-lower", det.Bounds.Lower)
	v.SetDefault("bounds-upper", det.Bounds.Upper)
	v.SetDefault("trial-amounts", det.TrialAmounts)
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("scan-timeout", 30*time.Second)
	v.SetDefault("gas-speed", string(gc.Speed))
	v.SetDefault("cost-unit", string(gc.Unit))
	v.SetDefault("approval-gas", gc.ApprovalGas)
	v.SetDefault("swap-gas", gc.SwapGas)
	v.SetDefault("safety-margin", gc.SafetyMargin)
	v.SetDefault("eth-usd", gc.ETHUSD)
	v.SetDefault("fallback-gwei", map[string]interface{}{"slow": 20, "standard": 30, "fast": 50})
	v.SetDefault("gas-max-age", gc.MaxAge)
	v.SetDefault("gas-estimator", false)
	v.SetDefault("fixed-cost", arbitrage.DefaultCost)
	v.SetDefault("pools", "./pools.yaml")
	v.SetDefault("db", "./data/snapshots.db")
	v.SetDefault("record", false)
	v.SetDefault("initial-capital", 10000.0)
	v.SetDefault("interval", 12*time.Second)
	v.SetDefault("cache-size", 4096)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("arbsim")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	trial, err := getFloatSlice(v, "trial-amounts")
	if err != nil {
		return Config{}, err
	}
	fallback, err := getUintMap(v, "fallback-gwei")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:             v.GetString("rpc"),
		LogLevel:           v.GetString("log-level"),
		Base:               v.GetString("base"),
		Quote:              v.GetString("quote"),
		Triangle:           getStringSlice(v, "triangle"),
		MinProfitThreshold: v.GetFloat64("min-profit"),
		ScreenThreshold:    v.GetFloat64("screen-threshold"),
		BoundsLower:        v.GetFloat64("bounds-lower"),
		BoundsUpper:        v.GetFloat64("bounds-upper"),
		TrialAmounts:       trial,
		Workers:            v.GetInt("workers"),
		ScanTimeout:        v.GetDuration("scan-timeout"),
		GasSpeed:           v.GetString("gas-speed"),
		CostUnit:           v.GetString("cost-unit"),
		ApprovalGas:        v.GetUint64("approval-gas"),
		SwapGas:            v.GetUint64("swap-gas"),
		SafetyMargin:       v.GetFloat64("safety-margin"),
		ETHUSD:             v.GetFloat64("eth-usd"),
		FallbackGwei:       fallback,
		GasPriceMaxAge:     v.GetDuration("gas-max-age"),
		UseGasEstimator:    v.GetBool("gas-estimator"),
		FixedCost:          v.GetFloat64("fixed-cost"),
		PoolsFile:          v.GetString("pools"),
		DBPath:             v.GetString("db"),
		Record:             v.GetBool("record"),
		Out:                v.GetString("out"),
		InitialCapital:     v.GetFloat64("initial-capital"),
		Interval:           v.GetDuration("interval"),
		CacheSize:          v.GetInt("cache-size"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Triangle != nil && len(c.Triangle) != 3:
		return fmt.Errorf("triangle needs 3 tokens, got %d", len(c.Triangle))
	case c.Interval <= 0:
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	case c.ScanTimeout <= 0:
		return fmt.Errorf("scan-timeout must be positive, got %s", c.ScanTimeout)
	case !(c.BoundsLower > 0) || !(c.BoundsUpper > c.BoundsLower):
		return fmt.Errorf("bounds must satisfy 0 < lower < upper, got [%g, %g]", c.BoundsLower, c.BoundsUpper)
	case c.Workers < 0:
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	case c.CacheSize <= 0:
		return fmt.Errorf("cache-size must be positive, got %d", c.CacheSize)
	}
	return nil
}

// Detector maps the loaded values onto a detector configuration.
func (c Config) Detector() arbitrage.Config {
	return arbitrage.Config{
		MinProfitThreshold: c.MinProfitThreshold,
		ScreenThreshold:    c.ScreenThreshold,
		Bounds:             arbitrage.Bounds{Lower: c.BoundsLower, Upper: c.BoundsUpper},
		TrialAmounts:       c.TrialAmounts,
		Workers:            c.Workers,
	}
}

// Gas maps the loaded values onto a gas estimator configuration.
func (c Config) Gas() gas.Config {
	fallback := make(map[gas.Speed]uint64, len(c.FallbackGwei))
	for k, v := range c.FallbackGwei {
		fallback[gas.Speed(k)] = v
	}
	return gas.Config{
		Speed:        gas.Speed(c.GasSpeed),
		Unit:         gas.Unit(c.CostUnit),
		ApprovalGas:  c.ApprovalGas,
		SwapGas:      c.SwapGas,
		SafetyMargin: c.SafetyMargin,
		ETHUSD:       c.ETHUSD,
		FallbackGwei: fallback,
		MaxAge:       c.GasPriceMaxAge,
	}
}

func (c Config) Pair() arbitrage.TokenPair {
	return arbitrage.TokenPair{Base: c.Base, Quote: c.Quote}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(strings.Trim(typed, "[]"))
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

// getFloatSlice accepts a list from a config file, a comma-separated env
// value, or the bracketed string pflag reports for float slices.
func getFloatSlice(v *viper.Viper, key string) ([]float64, error) {
	if !v.IsSet(key) {
		return nil, nil
	}

	var items []interface{}
	switch typed := v.Get(key).(type) {
	case []float64:
		return append([]float64(nil), typed...), nil
	case []interface{}:
		items = typed
	default:
		for _, s := range getStringSlice(v, key) {
			items = append(items, s)
		}
	}

	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, err := cast.ToFloat64E(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func getUintMap(v *viper.Viper, key string) (map[string]uint64, error) {
	raw, err := cast.ToStringMapE(v.Get(key))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	out := make(map[string]uint64, len(raw))
	for k, val := range raw {
		u, err := cast.ToUint64E(val)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", key, k, err)
		}
		out[strings.ToLower(k)] = u
	}
	return out, nil
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
