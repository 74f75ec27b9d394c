package domain

import (
	"encoding/json"
	"strconv"
)

// FactorCount is the fixed number of factor weights per qualification.
const FactorCount = 19

// Factors carries the declared factor weights in either of the two shapes
// present in the store: a keyed mapping ("factor_1".."factor_19") or a
// positional sequence. The shape is detected once, at unmarshal time, and
// Resolve collapses both into the same 19 numeric values.
type Factors struct {
	Keyed      map[string]any
	Positional []any
}

// NewKeyedFactors builds Factors from a keyed mapping.
func NewKeyedFactors(values map[string]any) Factors {
	return Factors{Keyed: values}
}

// NewPositionalFactors builds Factors from a positional sequence, where
// index 0 holds factor 1.
func NewPositionalFactors(values []any) Factors {
	return Factors{Positional: values}
}

func (f *Factors) UnmarshalJSON(data []byte) error {
	f.Keyed = nil
	f.Positional = nil
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return json.Unmarshal(data, &f.Positional)
		default:
			return json.Unmarshal(data, &f.Keyed)
		}
	}
	return nil
}

func (f Factors) MarshalJSON() ([]byte, error) {
	if f.Positional != nil {
		return json.Marshal(f.Positional)
	}
	if f.Keyed == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f.Keyed)
}

// Resolve returns the 19 factor values in order. Missing or non-numeric
// entries resolve to zero, never to an error.
func (f Factors) Resolve() [FactorCount]float64 {
	var values [FactorCount]float64
	if f.Positional != nil {
		for i := 0; i < FactorCount && i < len(f.Positional); i++ {
			values[i] = coerceFloat(f.Positional[i])
		}
		return values
	}
	for i := 0; i < FactorCount; i++ {
		values[i] = coerceFloat(f.Keyed["factor_"+strconv.Itoa(i+1)])
	}
	return values
}

// Sum8to19 is the validation metric: the sum of factors 8 through 19
// inclusive. Qualifications with a sum above 1.0 are invalid.
func (f Factors) Sum8to19() float64 {
	values := f.Resolve()
	sum := 0.0
	for i := 7; i < FactorCount; i++ {
		sum += values[i]
	}
	return sum
}

func coerceFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
