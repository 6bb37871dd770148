package evcs

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// asInt64 coerces a value read from the historical store.
func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, fmt.Errorf("evcs: nil value")
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintToInt64(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToInt64(x)
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return stringToInt64(string(x))
	case string:
		return stringToInt64(x)
	case []byte:
		return stringToInt64(string(x))
	default:
		return 0, fmt.Errorf("evcs: cannot convert %T to int64", v)
	}
}

func uintToInt64(x uint64) (int64, error) {
	if x > math.MaxInt64 {
		return 0, fmt.Errorf("evcs: %d overflows int64", x)
	}
	return int64(x), nil
}

func floatToInt64(x float64) (int64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("evcs: %v is not finite", x)
	}
	r := math.Round(x)
	if r >= math.MaxInt64 || r < math.MinInt64 {
		return 0, fmt.Errorf("evcs: %v overflows int64", x)
	}
	return int64(r), nil
}

func stringToInt64(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("evcs: parse %q: %w", s, err)
	}
	return floatToInt64(f)
}
