package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Placeholder is shown wherever a value has no data behind it.
const Placeholder = "—"

// Value is an optional decimal. The zero Value is undefined.
type Value struct {
	Float float64
	Valid bool
}

func Some(f float64) Value { return Value{Float: f, Valid: true} }

// ParseCompliance turns a stored free-text compliance value into a Value.
// Empty strings and anything that is not a finite decimal are undefined.
func ParseCompliance(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Value{}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Some(f)
}

// Format renders the value with the given number of decimals, or the placeholder.
func (v Value) Format(decimals int) string {
	if !v.Valid {
		return Placeholder
	}
	return strconv.FormatFloat(v.Float, 'f', decimals, 64)
}

func (v Value) String() string {
	if !v.Valid {
		return "undefined"
	}
	return fmt.Sprintf("%g", v.Float)
}

// Ptr is the nullable form used by stores and JSON payloads.
func (v Value) Ptr() *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float
	return &f
}

func FromPtr(p *float64) Value {
	if p == nil {
		return Value{}
	}
	return Some(*p)
}

// MarshalJSON encodes an undefined value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Ptr())
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var p *float64
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*v = FromPtr(p)
	return nil
}
