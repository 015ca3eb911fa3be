package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidAmount is returned when a money or quantity field is neither a
// number nor a numeric string.
var ErrInvalidAmount = errors.New("model: invalid amount")

// Amount is a money or quantity value. The backend serializes decimals as
// strings ("1500.00") on some endpoints and as numbers on others; both decode
// to the same float64. null and "" decode to zero.
type Amount float64

// Float returns the amount as a float64.
func (a Amount) Float() float64 {
	return float64(a)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(raw []byte) error {
	v, err := parseAmount(raw)
	if err != nil {
		return err
	}
	*a = Amount(v)
	return nil
}

// MarshalJSON implements json.Marshaler. Amounts are always written as numbers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(a), 'f', -1, 64)), nil
}

// parseAmount handles number, numeric string, null and empty string.
func parseAmount(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, raw)
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// Date is a calendar date or timestamp as sent by the backend. Date-only
// values ("2024-01-15") are parsed as midnight UTC. null and "" are zero.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate wraps t.
func NewDate(t time.Time) Date {
	return Date{Time: t}
}

// ParseDate parses a date-only or RFC 3339 value.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, fmt.Errorf("model: parsing date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// Equal reports whether both dates denote the same instant.
func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("model: date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON implements json.Marshaler. Midnight UTC values round-trip as
// date-only strings.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// String formats the date the way the backend sent it.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	t := d.Time
	if t.Location() == time.UTC && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339Nano)
}
