package conversion

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

// Currencies without a registry entry are treated as USD-equivalent with this
// many decimals.
const defaultDecimals = 6

type Currency struct {
	Symbol   string `yaml:"symbol"`
	Decimals int32  `yaml:"decimals"`
	// Native marks the chain's coin; it is priced through the oracle. Every
	// other currency is USD-denominated.
	Native bool `yaml:"native"`
}

type CurrenciesConfig struct {
	Currencies []Currency `yaml:"currencies"`
}

// Registry resolves currency symbols, case-insensitively.
type Registry struct {
	bySymbol map[string]Currency
	native   Currency
}

// DefaultRegistry knows SOL, USDC and USDT.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry([]Currency{
		{Symbol: "SOL", Decimals: 9, Native: true},
		{Symbol: "USDC", Decimals: 6},
		{Symbol: "USDT", Decimals: 6},
	})
	return r
}

func NewRegistry(currencies []Currency) (*Registry, error) {
	r := &Registry{bySymbol: make(map[string]Currency, len(currencies))}
	for i, c := range currencies {
		if c.Symbol == "" {
			return nil, fmt.Errorf("currency at index %d missing symbol", i)
		}
		if c.Decimals < 0 || c.Decimals > 18 {
			return nil, fmt.Errorf("currency %s has invalid decimals %d", c.Symbol, c.Decimals)
		}
		c.Symbol = strings.ToUpper(c.Symbol)
		if c.Native {
			if r.native.Symbol != "" {
				return nil, fmt.Errorf("currencies %s and %s are both marked native", r.native.Symbol, c.Symbol)
			}
			r.native = c
		}
		r.bySymbol[c.Symbol] = c
	}
	if r.native.Symbol == "" {
		return nil, fmt.Errorf("no native currency configured")
	}
	return r, nil
}

// LoadRegistry reads a YAML currency list. Relative paths resolve against the
// working directory.
func LoadRegistry(file string) (*Registry, error) {
	path := file
	if !filepath.IsAbs(file) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, file)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", file, err)
	}

	var config CurrenciesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", file, err)
	}
	return NewRegistry(config.Currencies)
}

// Lookup returns the currency, or a USD-equivalent placeholder for unknown symbols.
func (r *Registry) Lookup(symbol string) (Currency, bool) {
	c, ok := r.bySymbol[strings.ToUpper(symbol)]
	if !ok {
		return Currency{Symbol: strings.ToUpper(symbol), Decimals: defaultDecimals}, false
	}
	return c, true
}

func (r *Registry) Native() Currency {
	return r.native
}

// Symbols lists the registered currencies in alphabetical order.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.bySymbol))
	for symbol := range r.bySymbol {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
