// Package decimal implements fixed-point scale-2 arithmetic for credit
// amounts. It intentionally avoids float64 to eliminate rounding drift in
// the credit ledger.
package decimal

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Decimal represents a fixed-point number with two decimal places, stored
// internally as an integer count of cents (hundredths).
type Decimal struct {
	cents int64
}

// Zero is the additive identity.
var Zero = Decimal{}

// NewFromCents builds a Decimal directly from an integer cents count.
func NewFromCents(cents int64) Decimal {
	return Decimal{cents: cents}
}

// NewFromFloat builds a Decimal from a float64, rounding to the nearest
// cent. Used for fixed constants and for scanning float64 database values;
// JSON decoding goes through ParseDecimal, and all arithmetic stays integer.
func NewFromFloat(f float64) Decimal {
	return Decimal{cents: int64(math.Round(f * 100))}
}

// NewFromInt builds a Decimal representing a whole number of units.
func NewFromInt(i int64) Decimal {
	return Decimal{cents: i * 100}
}

// ParseDecimal parses a decimal string like "12.50" or "-3".
func ParseDecimal(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Decimal{}, fmt.Errorf("decimal: empty string")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	whole, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Decimal{}, fmt.Errorf("decimal: invalid whole part %q: %w", parts[0], err)
	}
	var frac int64
	if len(parts) == 2 {
		fracStr := parts[1]
		if len(fracStr) > 2 {
			fracStr = fracStr[:2]
		}
		for len(fracStr) < 2 {
			fracStr += "0"
		}
		frac, err = strconv.ParseInt(fracStr, 10, 64)
		if err != nil {
			return Decimal{}, fmt.Errorf("decimal: invalid fraction part %q: %w", parts[1], err)
		}
	}
	cents := whole*100 + frac
	if neg {
		cents = -cents
	}
	return Decimal{cents: cents}, nil
}

// Cents returns the underlying integer cents value.
func (d Decimal) Cents() int64 { return d.cents }

// Add returns d + other.
func (d Decimal) Add(other Decimal) Decimal { return Decimal{cents: d.cents + other.cents} }

// Sub returns d - other.
func (d Decimal) Sub(other Decimal) Decimal { return Decimal{cents: d.cents - other.cents} }

// Neg returns -d.
func (d Decimal) Neg() Decimal { return Decimal{cents: -d.cents} }

// IsZero reports whether d is exactly zero.
func (d Decimal) IsZero() bool { return d.cents == 0 }

// IsPositive reports whether d > 0.
func (d Decimal) IsPositive() bool { return d.cents > 0 }

// IsNegative reports whether d < 0.
func (d Decimal) IsNegative() bool { return d.cents < 0 }

// LessThan reports whether d < other.
func (d Decimal) LessThan(other Decimal) bool { return d.cents < other.cents }

// GreaterThan reports whether d > other.
func (d Decimal) GreaterThan(other Decimal) bool { return d.cents > other.cents }

// GreaterThanOrEqual reports whether d >= other.
func (d Decimal) GreaterThanOrEqual(other Decimal) bool { return d.cents >= other.cents }

// Equal reports whether d == other.
func (d Decimal) Equal(other Decimal) bool { return d.cents == other.cents }

// String renders the decimal with exactly two fractional digits.
func (d Decimal) String() string {
	neg := d.cents < 0
	c := d.cents
	if neg {
		c = -c
	}
	whole := c / 100
	frac := c % 100
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%02d", sign, whole, frac)
}

// Float64 converts to a float64 for display/metrics purposes only. Never
// used for arithmetic within the ledger.
func (d Decimal) Float64() float64 {
	return float64(d.cents) / 100
}

// MarshalJSON encodes the decimal as a JSON string, e.g. "12.50".
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string ("12.50") or a bare number (12.5).
func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	s = strings.Trim(s, `"`)
	parsed, err := ParseDecimal(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements database/sql/driver.Valuer, storing as numeric text.
func (d Decimal) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner, accepting numeric, string, or byte-slice forms.
func (d *Decimal) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Decimal{}
		return nil
	case []byte:
		parsed, err := ParseDecimal(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case string:
		parsed, err := ParseDecimal(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case float64:
		*d = NewFromFloat(v)
		return nil
	case int64:
		*d = NewFromInt(v)
		return nil
	default:
		return fmt.Errorf("decimal: unsupported scan type %T", src)
	}
}
