package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeTotals(t *testing.T) {
	cases := []struct {
		name               string
		subtotal, discount float64
		want               Totals
	}{
		{
			name:     "no discount",
			subtotal: 100, discount: 0,
			want: Totals{Subtotal: 100, Discount: 0, Tax: 8, Total: 108},
		},
		{
			name:     "capped percentage discount",
			subtotal: 100, discount: 10,
			want: Totals{Subtotal: 100, Discount: 10, Tax: 7.20, Total: 97.20},
		},
		{
			name:     "discount clamped to subtotal",
			subtotal: 30, discount: 50,
			want: Totals{Subtotal: 30, Discount: 30, Tax: 0, Total: 0},
		},
		{
			name:     "negative discount treated as zero",
			subtotal: 50, discount: -5,
			want: Totals{Subtotal: 50, Discount: 0, Tax: 4, Total: 54},
		},
		{
			name:     "cent rounding",
			subtotal: 19.99, discount: 2.5,
			want: Totals{Subtotal: 19.99, Discount: 2.5, Tax: 1.40, Total: 18.89},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeTotals(tc.subtotal, tc.discount)
			require.InDelta(t, tc.want.Subtotal, got.Subtotal, 1e-9)
			require.InDelta(t, tc.want.Discount, got.Discount, 1e-9)
			require.InDelta(t, tc.want.Tax, got.Tax, 1e-9)
			require.InDelta(t, tc.want.Total, got.Total, 1e-9)
		})
	}
}

func TestRound2(t *testing.T) {
	require.InDelta(t, 1.01, Round2(1.006), 1e-9)
	require.InDelta(t, 1.00, Round2(1.004), 1e-9)
	require.InDelta(t, 2.67, Round2(2.666666), 1e-9)
	require.InDelta(t, -2.67, Round2(-2.666666), 1e-9)
	require.InDelta(t, 0, Round2(0), 1e-9)
}
