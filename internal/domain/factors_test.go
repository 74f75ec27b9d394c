package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"testing"
)

func TestFactorsResolve_KeyedAndPositionalAgree(t *testing.T) {
	keyed := map[string]any{}
	positional := make([]any, FactorCount)
	for i := 1; i <= FactorCount; i++ {
		value := float64(i) / 100
		keyed["factor_"+strconv.Itoa(i)] = value
		positional[i-1] = value
	}

	fromKeyed := NewKeyedFactors(keyed).Resolve()
	fromPositional := NewPositionalFactors(positional).Resolve()

	if fromKeyed != fromPositional {
		t.Fatalf("expected both factor shapes to resolve identically, got %v vs %v", fromKeyed, fromPositional)
	}

	sumKeyed := NewKeyedFactors(keyed).Sum8to19()
	sumPositional := NewPositionalFactors(positional).Sum8to19()
	if math.Abs(sumKeyed-sumPositional) > 1e-12 {
		t.Fatalf("expected equal sums, got %v vs %v", sumKeyed, sumPositional)
	}
}

func TestFactorsResolve_MissingAndNonNumericAreZero(t *testing.T) {
	factors := NewKeyedFactors(map[string]any{
		"factor_1": "0.25",
		"factor_2": "not-a-number",
		"factor_3": true,
		// factor_4..19 missing entirely
	})

	values := factors.Resolve()
	if values[0] != 0.25 {
		t.Fatalf("expected numeric string to parse, got %v", values[0])
	}
	if values[1] != 0 || values[2] != 0 {
		t.Fatalf("expected non-numeric entries to resolve to zero, got %v and %v", values[1], values[2])
	}
	for i := 3; i < FactorCount; i++ {
		if values[i] != 0 {
			t.Fatalf("expected missing factor %d to be zero, got %v", i+1, values[i])
		}
	}
}

func TestFactorsSum8to19_IgnoresFactors1to7(t *testing.T) {
	keyed := map[string]any{
		"factor_1":  5.0,
		"factor_7":  3.0,
		"factor_8":  0.4,
		"factor_19": 0.6,
	}
	sum := NewKeyedFactors(keyed).Sum8to19()
	if math.Abs(sum-1.0) > 1e-12 {
		t.Fatalf("expected sum of 1.0, got %v", sum)
	}
}

func TestFactorsUnmarshalJSON_DetectsShape(t *testing.T) {
	var keyed Factors
	if err := json.Unmarshal([]byte(`{"factor_8": 0.5}`), &keyed); err != nil {
		t.Fatalf("unmarshal keyed factors: %v", err)
	}
	if keyed.Keyed == nil || keyed.Positional != nil {
		t.Fatalf("expected keyed shape, got %+v", keyed)
	}
	if got := keyed.Sum8to19(); got != 0.5 {
		t.Fatalf("expected sum 0.5, got %v", got)
	}

	var positional Factors
	if err := json.Unmarshal([]byte(`[0,0,0,0,0,0,0,0.5,0,0,0,0,0,0,0,0,0,0,0.25]`), &positional); err != nil {
		t.Fatalf("unmarshal positional factors: %v", err)
	}
	if positional.Positional == nil || positional.Keyed != nil {
		t.Fatalf("expected positional shape, got %+v", positional)
	}
	if got := positional.Sum8to19(); got != 0.75 {
		t.Fatalf("expected sum 0.75, got %v", got)
	}
}
