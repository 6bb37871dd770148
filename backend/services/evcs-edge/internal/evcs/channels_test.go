package evcs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueInt(t *testing.T) {
	cases := []struct {
		name    string
		value   Value
		want    int64
		defined bool
	}{
		{name: "unset", value: Value{}, want: 0, defined: false},
		{name: "rounded", value: Value{v: 7399.6, defined: true}, want: 7400, defined: true},
		{name: "negative", value: Value{v: -2.5, defined: true}, want: -3, defined: true},
		{name: "above range", value: Value{v: 1e20, defined: true}, want: math.MaxInt64, defined: true},
		{name: "below range", value: Value{v: -1e20, defined: true}, want: math.MinInt64, defined: true},
		{name: "positive infinity", value: Value{v: math.Inf(1), defined: true}, want: math.MaxInt64, defined: true},
		{name: "negative infinity", value: Value{v: math.Inf(-1), defined: true}, want: math.MinInt64, defined: true},
		{name: "nan", value: Value{v: math.NaN(), defined: true}, want: 0, defined: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.value.Int()
			assert.Equal(t, tc.defined, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
