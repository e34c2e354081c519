package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/nutree/stock-service/internal/apperr"
	"github.com/shopspring/decimal"
)

// Quantity is a fixed-point quantity with exactly three fractional digits,
// stored as int64 thousandths. Stock fields are non-negative; movement
// deltas reuse the type with a sign.
type Quantity int64

const quantityScale int32 = 3

var maxQuantity = Quantity(math.MaxInt64)

func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, apperr.New(apperr.KindInvalidOperation, "invalid quantity %q", s)
	}
	milli := d.Shift(quantityScale)
	if !milli.IsInteger() {
		return 0, apperr.New(apperr.KindInvalidOperation, "quantity %q has more than 3 fractional digits", s)
	}
	if !milli.BigInt().IsInt64() {
		return 0, apperr.New(apperr.KindOverflow, "quantity %q out of range", s)
	}
	return Quantity(milli.IntPart()), nil
}

// QuantityFromUnits builds a whole-unit quantity.
func QuantityFromUnits(units int64) (Quantity, error) {
	if units > math.MaxInt64/1000 || units < math.MinInt64/1000 {
		return 0, apperr.New(apperr.KindOverflow, "quantity %d units out of range", units)
	}
	return Quantity(units * 1000), nil
}

// MustQuantity parses s and panics on failure. Test and fixture helper.
func MustQuantity(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

// Add is checked addition of two non-negative quantities.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	if o > maxQuantity-q {
		return 0, apperr.New(apperr.KindOverflow, "quantity addition overflows: %s + %s", q, o)
	}
	return q + o, nil
}

// Sub fails with Underflow when the result would be negative.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	if o > q {
		return 0, apperr.New(apperr.KindUnderflow, "quantity subtraction underflows: %s - %s", q, o)
	}
	return q - o, nil
}

// ApplyDelta adds a signed delta, failing with Overflow on range and
// Underflow when the result would be negative.
func (q Quantity) ApplyDelta(delta Quantity) (Quantity, error) {
	if delta >= 0 {
		return q.Add(delta)
	}
	// -MinInt64 wraps; catch it before negating.
	if delta == Quantity(math.MinInt64) {
		return 0, apperr.New(apperr.KindOverflow, "delta out of range")
	}
	return q.Sub(-delta)
}

func (q Quantity) Neg() Quantity      { return -q }
func (q Quantity) IsZero() bool       { return q == 0 }
func (q Quantity) IsPositive() bool   { return q > 0 }
func (q Quantity) IsNegative() bool   { return q < 0 }
func (q Quantity) Cmp(o Quantity) int {
	switch {
	case q < o:
		return -1
	case q > o:
		return 1
	}
	return 0
}

func (q Quantity) Decimal() decimal.Decimal {
	return decimal.New(int64(q), -quantityScale)
}

func (q Quantity) String() string {
	return q.Decimal().StringFixed(quantityScale)
}

// Mul prices the quantity at unitPrice per whole unit. Rounding to two
// decimals happens here, with banker's rounding, and nowhere earlier.
func (q Quantity) Mul(unitPrice Money) (Money, error) {
	total := q.Decimal().Mul(unitPrice.Decimal()).RoundBank(2)
	cents := total.Shift(2)
	if !cents.BigInt().IsInt64() {
		return 0, apperr.New(apperr.KindOverflow, "valuation overflows: %s * %s", q, unitPrice)
	}
	return Money(cents.IntPart()), nil
}

func (q Quantity) Value() (driver.Value, error) {
	return q.String(), nil
}

func (q *Quantity) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*q = 0
		return nil
	case int64:
		parsed, err := QuantityFromUnits(v)
		if err != nil {
			return err
		}
		*q = parsed
		return nil
	case float64:
		*q = Quantity(math.Round(v * 1000))
		return nil
	case []byte:
		parsed, err := ParseQuantity(string(v))
		if err != nil {
			return err
		}
		*q = parsed
		return nil
	case string:
		parsed, err := ParseQuantity(v)
		if err != nil {
			return err
		}
		*q = parsed
		return nil
	}
	return fmt.Errorf("cannot scan %T into Quantity", src)
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Accept bare JSON numbers too.
		s = string(data)
	}
	parsed, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// Money is an amount with two fractional digits, stored as int64 cents.
// It exists only at the valuation boundary; the ledger itself never holds
// monetary state.
type Money int64

func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, apperr.New(apperr.KindInvalidOperation, "invalid amount %q", s)
	}
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return 0, apperr.New(apperr.KindInvalidOperation, "amount %q has more than 2 fractional digits", s)
	}
	if !cents.BigInt().IsInt64() {
		return 0, apperr.New(apperr.KindOverflow, "amount %q out of range", s)
	}
	return Money(cents.IntPart()), nil
}

func (m Money) Add(o Money) (Money, error) {
	if (o > 0 && m > Money(math.MaxInt64)-o) || (o < 0 && m < Money(math.MinInt64)-o) {
		return 0, apperr.New(apperr.KindOverflow, "amount addition overflows")
	}
	return m + o, nil
}

func (m Money) Decimal() decimal.Decimal { return decimal.New(int64(m), -2) }
func (m Money) String() string           { return m.Decimal().StringFixed(2) }

func (m Money) Value() (driver.Value, error) { return m.String(), nil }

func (m *Money) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = 0
		return nil
	case int64:
		*m = Money(v * 100)
		return nil
	case float64:
		*m = Money(math.Round(v * 100))
		return nil
	case []byte:
		parsed, err := ParseMoney(string(v))
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case string:
		parsed, err := ParseMoney(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	return fmt.Errorf("cannot scan %T into Money", src)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
