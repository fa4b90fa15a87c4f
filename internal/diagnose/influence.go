package diagnose

import (
	"fmt"
	"math"

	"github.com/kshedden/dstream/dstream"
	"gonum.org/v1/gonum/mat"

	"github.com/BoweiZ98/Dementia-and-TBI/internal/model"
)

// Influence holds per-pattern diagnostic measures for the grouped binomial
// fit: one value per covariate pattern, not per subject.
type Influence struct {
	Fitted      []float64
	Pearson     []float64
	Studentized []float64
	Leverage    []float64
	CooksD      []float64

	// Flagged lists pattern indices exceeding the conventional leverage
	// (2p/n) or Cook's distance (4/n) thresholds.  These are candidates
	// for manual review only.
	Flagged []int
}

// DesignMatrix extracts the design columns from da in the coefficient order
// of ft, along with the observed proportions and trial counts.
func DesignMatrix(da dstream.Dstream, ft *model.Fit) (*mat.Dense, []float64, []float64, error) {

	nr := da.NumObs()
	nc := len(ft.Coefs)
	x := mat.NewDense(nr, nc, nil)

	// GetCol panics on an unknown name, so check membership up front.
	have := make(map[string]bool)
	for _, na := range da.Names() {
		have[na] = true
	}

	for j, c := range ft.Coefs {
		if !have[c.Name] {
			return nil, nil, nil, fmt.Errorf("diagnose: design column %s not found", c.Name)
		}
		da.Reset()
		col := dstream.GetCol(da, c.Name).([]float64)
		if len(col) != nr {
			return nil, nil, nil, fmt.Errorf("diagnose: design column %s has %d values, want %d", c.Name, len(col), nr)
		}
		for i := 0; i < nr; i++ {
			x.Set(i, j, col[i])
		}
	}

	da.Reset()
	y := dstream.GetCol(da, ColProp).([]float64)
	da.Reset()
	n := dstream.GetCol(da, ColTrials).([]float64)

	return x, y, n, nil
}

// Measures computes leverage, Pearson and studentized residuals, and Cook's
// distance for a weighted binomial fit.  x is the design matrix with one
// row per covariate pattern, n the trial counts, y the observed proportions
// and beta the fitted coefficients.
func Measures(x *mat.Dense, n, y, beta []float64) (*Influence, error) {

	nr, nc := x.Dims()
	if len(n) != nr || len(y) != nr || len(beta) != nc {
		return nil, fmt.Errorf("diagnose: dimension mismatch: %d patterns, %d params", nr, nc)
	}

	mu := make([]float64, nr)
	w := make([]float64, nr)
	for i := 0; i < nr; i++ {
		eta := 0.0
		for j := 0; j < nc; j++ {
			eta += x.At(i, j) * beta[j]
		}
		m := 1 / (1 + math.Exp(-eta))
		mu[i] = m
		w[i] = n[i] * m * (1 - m)
	}

	// Weighted cross product X'WX and its inverse.
	wx := mat.NewDense(nr, nc, nil)
	for i := 0; i < nr; i++ {
		for j := 0; j < nc; j++ {
			wx.Set(i, j, w[i]*x.At(i, j))
		}
	}
	var xtwx mat.Dense
	xtwx.Mul(x.T(), wx)
	var inv mat.Dense
	if err := inv.Inverse(&xtwx); err != nil {
		return nil, fmt.Errorf("diagnose: singular weighted design: %w", err)
	}

	inf := &Influence{
		Fitted:      mu,
		Pearson:     make([]float64, nr),
		Studentized: make([]float64, nr),
		Leverage:    make([]float64, nr),
		CooksD:      make([]float64, nr),
	}

	xi := mat.NewVecDense(nc, nil)
	var tmp mat.VecDense
	for i := 0; i < nr; i++ {
		for j := 0; j < nc; j++ {
			xi.SetVec(j, x.At(i, j))
		}
		tmp.MulVec(&inv, xi)
		h := w[i] * mat.Dot(xi, &tmp)
		inf.Leverage[i] = h

		r := (y[i] - mu[i]) * math.Sqrt(n[i]/(mu[i]*(1-mu[i])))
		inf.Pearson[i] = r

		rs := r / math.Sqrt(1-h)
		inf.Studentized[i] = rs

		inf.CooksD[i] = rs * rs * h / (float64(nc) * (1 - h))
	}

	hcut := 2 * float64(nc) / float64(nr)
	dcut := 4 / float64(nr)
	for i := 0; i < nr; i++ {
		if inf.Leverage[i] > hcut || inf.CooksD[i] > dcut {
			inf.Flagged = append(inf.Flagged, i)
		}
	}

	return inf, nil
}
