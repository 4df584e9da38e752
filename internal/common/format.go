package common

import (
	"fmt"
	"math"
	"strings"

	"privacy-relay-settlement/internal/conversion"

	"github.com/shopspring/decimal"
)

const (
	// Default separator widths
	DefaultWidth = 80
	WideWidth    = 100
)

// PrintSeparator prints a separator line with the specified character and width
func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a formatted header with title and separators
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

// PrintFooter prints a formatted footer with message and separators
func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// BoxPrefix returns the box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix returns the prefix for detail lines under list items
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// FormatAmount renders a smallest-unit amount in whole units, e.g.
// 1500000000 SOL -> "1.5 SOL".
func FormatAmount(registry *conversion.Registry, amount int64, currency string) string {
	cur, _ := registry.Lookup(currency)
	return decimal.New(amount, -cur.Decimals).String() + " " + strings.ToUpper(currency)
}

// ParseAmount converts a whole-unit amount such as "1.5" into the currency's
// smallest unit. Fractions below one unit are rejected.
func ParseAmount(registry *conversion.Registry, amount, currency string) (int64, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount format: %w", err)
	}
	if value.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("amount must be greater than zero")
	}

	cur, _ := registry.Lookup(currency)
	units := value.Shift(cur.Decimals)
	if !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimals for %s", amount, cur.Decimals, cur.Symbol)
	}
	if units.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("amount %s is too large", amount)
	}
	return units.IntPart(), nil
}

// ShortId truncates long identifiers for tables.
func ShortId(id string) string {
	if id == "" {
		return "none"
	}
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}
