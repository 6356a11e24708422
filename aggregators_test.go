package edgez

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(f float64) float64 { return f }

func TestAggregators(t *testing.T) {
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	cases := map[string]struct {
		fn   AggregateFunc[float64, string, Measure[string]]
		want float64
	}{
		"min":    {Min[float64, string](identity), 2},
		"max":    {Max[float64, string](identity), 9},
		"sum":    {Sum[float64, string](identity), 40},
		"mean":   {Mean[float64, string](identity), 5},
		"median": {Median[float64, string](identity), 4.5},
		"stddev": {StdDev[float64, string](identity), 2},
		"count":  {Count[float64, string](), 8},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			m, ok, err := tc.fn(data, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "k", m.Key)
			assert.InDelta(t, tc.want, m.Value, 1e-9)

			_, ok, err = tc.fn(nil, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStats(t *testing.T) {
	s, ok, err := Stats[float64, string](identity)([]float64{2, 4, 4, 4, 5, 5, 7, 9}, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Summary[string]{Key: "k", Count: 8, Min: 2, Max: 9, Mean: 5, StdDev: 2}, s)
	assert.Equal(t, "k: count=8 min=2 max=9 mean=5 stddev=2", s.String())

	_, ok, err = Stats[float64, string](identity)(nil, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
