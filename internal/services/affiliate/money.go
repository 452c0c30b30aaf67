package affiliate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred     = decimal.NewFromInt(100)
	codePattern = regexp.MustCompile(`^[A-Z0-9]{3,32}$`)
)

// ComputeCommission returns round2(gross * percentage / 100)
func ComputeCommission(gross, percentage decimal.Decimal) decimal.Decimal {
	return gross.Mul(percentage).Div(hundred).Round(2)
}

// ValidatePercentage enforces 0 <= pct <= 100 with at most two decimal places,
// the precision the percentage columns store
func ValidatePercentage(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("%w: got %s", ErrInvalidPercentage, pct.String())
	}
	if !pct.Equal(pct.Round(2)) {
		return fmt.Errorf("%w: at most two decimal places, got %s", ErrInvalidPercentage, pct.String())
	}
	return nil
}

// NormalizeCode trims and upper-cases user supplied codes; matching is case-insensitive
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func validCode(code string) bool {
	return codePattern.MatchString(code)
}
