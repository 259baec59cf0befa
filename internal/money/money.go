// Package money normalizes the monetary fields of a session config into
// fixed-point decimals.
//
// Values are held as their quantized decimal text so they stay immutable and
// comparable. Rounding is round-half-even at the quantization boundary, which
// removes float artifacts such as 0.010000000000000000208 deterministically.
package money

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

const (
	// CurrencyPlaces is the number of fractional digits kept for real-world
	// currency amounts such as the participation fee.
	CurrencyPlaces = 2

	// RatePlaces is the number of fractional digits kept for
	// real_world_currency_per_point.
	RatePlaces = 5
)

var decimalCtx = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(34)
	c.Rounding = apd.RoundHalfEven
	return c
}()

// Currency is a real-world currency amount with CurrencyPlaces digits.
type Currency struct {
	text string
}

// Rate is a points-to-currency conversion factor with RatePlaces digits.
type Rate struct {
	text string
}

// ParseCurrency coerces a decoded config value (number or numeric string)
// into a Currency.
func ParseCurrency(v any) (Currency, error) {
	s, err := quantize(v, CurrencyPlaces)
	if err != nil {
		return Currency{}, err
	}
	return Currency{text: s}, nil
}

// MustCurrency is like ParseCurrency but panics on error.
// Use only in tests or for literals.
func MustCurrency(v any) Currency {
	c, err := ParseCurrency(v)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseRate coerces a decoded config value into a Rate.
func ParseRate(v any) (Rate, error) {
	s, err := quantize(v, RatePlaces)
	if err != nil {
		return Rate{}, err
	}
	return Rate{text: s}, nil
}

// MustRate is like ParseRate but panics on error.
func MustRate(v any) Rate {
	r, err := ParseRate(v)
	if err != nil {
		panic(err)
	}
	return r
}

func (c Currency) String() string {
	if c.text == "" {
		return zeroText(CurrencyPlaces)
	}
	return c.text
}

func (r Rate) String() string {
	if r.text == "" {
		return zeroText(RatePlaces)
	}
	return r.text
}

// Decimal returns a fresh apd.Decimal holding the amount.
func (c Currency) Decimal() *apd.Decimal {
	return mustDecimal(c.String())
}

// Decimal returns a fresh apd.Decimal holding the rate.
func (r Rate) Decimal() *apd.Decimal {
	return mustDecimal(r.String())
}

// PointsToCurrency converts an amount of points at this rate, quantized to
// CurrencyPlaces.
func (r Rate) PointsToCurrency(points int64) (Currency, error) {
	product := new(apd.Decimal)
	if _, err := decimalCtx.Mul(product, r.Decimal(), apd.New(points, 0)); err != nil {
		return Currency{}, fmt.Errorf("convert points: %w", err)
	}
	return ParseCurrency(product.Text('f'))
}

// Add returns c + other.
func (c Currency) Add(other Currency) (Currency, error) {
	sum := new(apd.Decimal)
	if _, err := decimalCtx.Add(sum, c.Decimal(), other.Decimal()); err != nil {
		return Currency{}, fmt.Errorf("add currency: %w", err)
	}
	return ParseCurrency(sum.Text('f'))
}

func (c Currency) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Currency) UnmarshalJSON(data []byte) error {
	parsed, err := ParseCurrency(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rate) UnmarshalJSON(data []byte) error {
	parsed, err := ParseRate(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// quantize converts v to decimal text with exactly places fractional digits.
func quantize(v any, places int32) (string, error) {
	raw, err := decimalText(v)
	if err != nil {
		return "", err
	}
	d, _, err := apd.NewFromString(raw)
	if err != nil {
		return "", fmt.Errorf("parse decimal %q: %w", raw, err)
	}
	if d.Form != apd.Finite {
		return "", fmt.Errorf("decimal %q is not finite", raw)
	}
	out := new(apd.Decimal)
	if _, err := decimalCtx.Quantize(out, d, -places); err != nil {
		return "", fmt.Errorf("quantize %q: %w", raw, err)
	}
	return out.Text('f'), nil
}

func decimalText(v any) (string, error) {
	switch n := v.(type) {
	case nil:
		return "", fmt.Errorf("amount is null")
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return "", fmt.Errorf("amount is empty")
		}
		return s, nil
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return "", fmt.Errorf("amount %v is not finite", n)
		}
		return strconv.FormatFloat(n, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), nil
	case Currency:
		return n.String(), nil
	case Rate:
		return n.String(), nil
	default:
		return "", fmt.Errorf("unsupported amount type %T", v)
	}
}

func zeroText(places int) string {
	return "0." + strings.Repeat("0", places)
}

func mustDecimal(s string) *apd.Decimal {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("money: invalid stored decimal %q: %v", s, err))
	}
	return d
}
