package evcs

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsInt64(t *testing.T) {
	cases := []struct {
		in   any
		want int64
	}{
		{in: 42, want: 42},
		{in: int32(-7), want: -7},
		{in: uint16(9), want: 9},
		{in: 12.6, want: 13},
		{in: float32(2.4), want: 2},
		{in: " 1500 ", want: 1500},
		{in: "1500.5", want: 1501},
		{in: []byte("77"), want: 77},
		{in: json.Number("88"), want: 88},
		{in: true, want: 1},
	}
	for _, tc := range cases {
		got, err := asInt64(tc.in)
		require.NoError(t, err, "%#v", tc.in)
		assert.Equal(t, tc.want, got, "%#v", tc.in)
	}
}

func TestAsInt64Rejects(t *testing.T) {
	for _, in := range []any{nil, "abc", math.NaN(), math.Inf(1), uint64(math.MaxUint64), map[string]int{}} {
		_, err := asInt64(in)
		assert.Error(t, err, "%#v", in)
	}
}
