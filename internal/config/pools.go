package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/pulkyeet/arb-engine/internal/amm"
)

// PoolEntry is one pool in a pools file. DEX or Address, when set, bind a
// constant product pool to an on-chain pair for live reserves.
type PoolEntry struct {
	Name          string    `mapstructure:"name"`
	Kind          string    `mapstructure:"kind"`
	Tokens        []string  `mapstructure:"tokens"`
	Reserves      []float64 `mapstructure:"reserves"`
	Fee           float64   `mapstructure:"fee"`
	Amplification float64   `mapstructure:"amplification"`
	DEX           string    `mapstructure:"dex"`
	Address       string    `mapstructure:"address"`
}

func (e PoolEntry) AMM() amm.Config {
	return amm.Config{
		Name:          e.Name,
		Kind:          amm.Kind(e.Kind),
		Tokens:        e.Tokens,
		Reserves:      e.Reserves,
		Fee:           e.Fee,
		Amplification: e.Amplification,
	}
}

// Live reports whether the entry is bound to an on-chain pair.
func (e PoolEntry) Live() bool {
	return e.DEX != "" || e.Address != ""
}

// LoadPools reads the "pools" list from a YAML, JSON or TOML file.
func LoadPools(path string) ([]PoolEntry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read pools file: %w", err)
	}

	var entries []PoolEntry
	if err := v.UnmarshalKey("pools", &entries); err != nil {
		return nil, fmt.Errorf("decode pools: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("pools file %s lists no pools", path)
	}

	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("pool %d has no name", i)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("duplicate pool name %q", e.Name)
		}
		seen[e.Name] = true
	}
	return entries, nil
}

// BuildPools constructs every entry, failing on the first invalid one.
func BuildPools(entries []PoolEntry) ([]amm.Pool, error) {
	pools := make([]amm.Pool, 0, len(entries))
	for _, e := range entries {
		p, err := amm.New(e.AMM())
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, nil
}
