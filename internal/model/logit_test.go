package model

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/kshedden/dstream/dstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// synthetic builds a stream with outcome y generated from a logistic model
// over k standard normal covariates x1..xk with the given coefficients.
func synthetic(t *testing.T, n int, seed int64, icept float64, beta []float64) dstream.Dstream {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))

	var buf bytes.Buffer
	buf.WriteString("y")
	for j := range beta {
		fmt.Fprintf(&buf, ",x%d", j+1)
	}
	buf.WriteString("\n")

	for i := 0; i < n; i++ {
		eta := icept
		x := make([]float64, len(beta))
		for j := range beta {
			x[j] = rng.NormFloat64()
			eta += beta[j] * x[j]
		}
		p := 1 / (1 + math.Exp(-eta))
		y := 0
		if rng.Float64() < p {
			y = 1
		}
		fmt.Fprintf(&buf, "%d", y)
		for j := range x {
			fmt.Fprintf(&buf, ",%f", x[j])
		}
		buf.WriteString("\n")
	}

	names := []string{"y"}
	for j := range beta {
		names = append(names, fmt.Sprintf("x%d", j+1))
	}
	tc := &dstream.CSVTypeConf{Float64: names}
	ds := dstream.FromCSV(&buf).TypeConf(tc).ChunkSize(200).HasHeader().Done()
	return dstream.MemCopy(ds, false)
}

func coefByName(t *testing.T, ft *Fit, name string) Coef {
	t.Helper()
	for _, c := range ft.Coefs {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no coefficient named %s", name)
	return Coef{}
}

func TestLogitRecoversEffect(t *testing.T) {

	ds := synthetic(t, 800, 42, -0.3, []float64{1.0, 0})

	ft, err := Logit(ds, "1 + x1 + x2", "y", nil)
	require.NoError(t, err)
	assert.Equal(t, 800, ft.N)

	// The library summary (which carries the same estimates and standard
	// errors) is available for the report.
	assert.NotEmpty(t, ft.Summary())

	c := coefByName(t, ft, "x1")
	assert.InDelta(t, 1.0, c.Est, 0.4)
	assert.Less(t, c.P, 0.01)

	// The odds-ratio interval for a strong effect excludes 1.
	assert.Greater(t, c.ORLo, 1.0)
	assert.Greater(t, c.ORHi, c.ORLo)
	assert.InDelta(t, math.Exp(c.Est), c.OR, 1e-10)
}

func TestLRTMatchesLogLikDifference(t *testing.T) {

	ds := synthetic(t, 600, 7, 0.1, []float64{0.8, 0.0})

	reduced, err := Logit(ds, "1 + x1", "y", nil)
	require.NoError(t, err)
	full, err := Logit(ds, "1 + x1 + x2", "y", nil)
	require.NoError(t, err)

	res := LRT(full, reduced)

	assert.Equal(t, 1, res.DF)
	assert.InDelta(t, 2*(full.LogLike-reduced.LogLike), res.Stat, 1e-12)
	assert.Greater(t, res.Stat, -1e-6) // the full model nests the reduced one
	assert.GreaterOrEqual(t, res.P, 0.0)
	assert.LessOrEqual(t, res.P, 1.0)

	// x2 has no true effect, so the interaction-style gate should not
	// retain it at the 0.05 level for this seed.
	assert.False(t, res.Reject)
}
