package diagnose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/BoweiZ98/Dementia-and-TBI/internal/model"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

func TestMeasuresHatAndResiduals(t *testing.T) {

	// Four covariate patterns, intercept plus one dummy.
	x := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 0,
		1, 1,
		1, 1,
	})
	n := []float64{10, 12, 8, 9}
	y := []float64{0.2, 0.25, 0.5, 0.44}
	beta := []float64{-1.2, 1.1}

	inf, err := Measures(x, n, y, beta)
	require.NoError(t, err)

	// The trace of the hat matrix equals the parameter count.
	assert.InDelta(t, 2.0, floats.Sum(inf.Leverage), 1e-8)
	for i, h := range inf.Leverage {
		assert.Greater(t, h, 0.0, "pattern %d", i)
		assert.Less(t, h, 1.0, "pattern %d", i)
	}

	for i := range y {
		mu := inf.Fitted[i]
		assert.Greater(t, mu, 0.0)
		assert.Less(t, mu, 1.0)

		// Pearson residual sign follows the raw residual.
		if y[i] > mu {
			assert.Greater(t, inf.Pearson[i], 0.0, "pattern %d", i)
		} else {
			assert.Less(t, inf.Pearson[i], 0.0, "pattern %d", i)
		}

		// Studentization inflates the residual.
		assert.GreaterOrEqual(t, math.Abs(inf.Studentized[i]), math.Abs(inf.Pearson[i]))
		assert.GreaterOrEqual(t, inf.CooksD[i], 0.0)
	}
}

func TestDesignMatrixMissingColumn(t *testing.T) {

	pats := []Pattern{
		{Levels: []string{"low"}, Cases: 2, Trials: 10},
		{Levels: []string{"high"}, Cases: 7, Trials: 14},
	}
	ds, err := Stream(pats, []string{"a"})
	require.NoError(t, err)

	// A coefficient whose column the stream does not carry must surface as
	// an error rather than a panic out of the column lookup.
	ft := &model.Fit{Coefs: []model.Coef{{Name: "zz"}}}
	_, _, _, err = DesignMatrix(ds, ft)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zz")
}

func TestMeasuresDimensionMismatch(t *testing.T) {

	x := mat.NewDense(2, 2, []float64{1, 0, 1, 1})
	_, err := Measures(x, []float64{5}, []float64{0.5, 0.5}, []float64{0, 0})
	assert.Error(t, err)
}

func TestCheckSeparationFlagsConstantCell(t *testing.T) {

	text := "y,g,sub\n" +
		"1,a,N\n" +
		"0,a,Y\n" +
		"1,b,N\n" +
		"1,b,N\n" +
		"0,a,Y\n" +
		"1,a,Y\n"
	ds := testStream(t, text, []string{"y"}, []string{"g", "sub"})

	warns := CheckSeparation(ds, "y", []string{"g"}, "sub", "N", nopLogger())

	// Level b is all cases both overall and within the subgroup.
	var full, sub bool
	for _, w := range warns {
		if w.Variable == "g" && w.Level == "b" && w.AllCases {
			if w.Subgroup == "" {
				full = true
			}
			if w.Subgroup == "N" {
				sub = true
			}
		}
	}
	assert.True(t, full, "expected full-sample warning for level b")
	assert.True(t, sub, "expected subgroup warning for level b")
}
