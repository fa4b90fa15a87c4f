// Package model fits the logistic regressions and runs the variable
// selection and nested-model tests for the donor analysis.
package model

import (
	"fmt"
	"math"

	"github.com/kshedden/dstream/dstream"
	"github.com/kshedden/dstream/formula"
	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	"gonum.org/v1/gonum/stat/distuv"
)

// Alpha is the significance level for Wald intervals and the interaction
// tests.
const Alpha = 0.05

// interceptName is the name the formula package gives the intercept column.
const interceptName = "icept"

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// Coef holds the reported quantities for one fitted term: the estimate on
// the link scale with its Wald statistics, and the exponentiated estimate
// with its 95% interval for odds-ratio interpretation.
type Coef struct {
	Name string
	Est  float64
	SE   float64
	Z    float64
	P    float64
	OR   float64
	ORLo float64
	ORHi float64
}

// Fit is one fitted logistic regression together with everything the report
// needs from it.
type Fit struct {
	Formula string
	N       int
	LogLike float64
	NParams int
	Coefs   []Coef

	summary string
}

// Summary returns the library summary table, on the link scale and as odds
// ratios.
func (f *Fit) Summary() string { return f.summary }

// Design expands a model formula against ds, keeping the outcome and any
// weight column alongside the design columns.
func Design(ds dstream.Dstream, fml string, reflev map[string]string, keep ...string) dstream.Dstream {
	ds.Reset()
	fb := formula.New(fml, ds)
	if len(reflev) > 0 {
		fb = fb.RefLevels(reflev)
	}
	fx := fb.Keep(keep...).Done()
	da := dstream.MemCopy(fx, false)
	return dstream.DropNA(da)
}

// Logit fits an ordinary maximum likelihood logistic regression of outcome
// on the formula terms.
func Logit(ds dstream.Dstream, fml, outcome string, reflev map[string]string) (*Fit, error) {
	da := Design(ds, fml, reflev, outcome)
	ft, err := FitData(da, outcome, "", nil)
	if err != nil {
		return nil, err
	}
	ft.Formula = fml
	return ft, nil
}

// LogitWeighted fits a binomial proportion model, weighting each row by the
// named trials column.  It returns the design stream along with the fit so
// callers can compute influence measures against the same matrix.
func LogitWeighted(ds dstream.Dstream, fml, outcome, weight string, reflev map[string]string) (*Fit, dstream.Dstream, error) {
	da := Design(ds, fml, reflev, outcome, weight)
	ft, err := FitData(da, outcome, weight, nil)
	if err != nil {
		return nil, nil, err
	}
	ft.Formula = fml
	return ft, da, nil
}

// FitData fits a binomial GLM to a design-ready stream.  The stream must
// contain the outcome, the design columns, and the weight column if any.
// A non-empty l2 map requests a ridge-stabilized fit with normed covariates.
func FitData(da dstream.Dstream, outcome, weight string, l2 map[string]float64) (*Fit, error) {

	da.Reset()

	fam := glm.NewFamily(glm.BinomialFamily)
	mb := glm.NewGLM(da, outcome).Family(fam)
	if weight != "" {
		mb = mb.Weight(weight)
	}
	if len(l2) > 0 {
		mb = mb.L2Penalty(l2).CovariateScale(statmodel.L2Norm)
	}

	rslt := mb.Done().Fit()
	if rslt == nil {
		return nil, fmt.Errorf("model: fit failed for outcome %s", outcome)
	}

	names := rslt.Names()
	par := rslt.Params()
	se := rslt.StdErr()

	zq := stdNormal.Quantile(1 - Alpha/2)

	coefs := make([]Coef, len(names))
	for i := range names {
		if math.IsNaN(par[i]) || math.IsNaN(se[i]) || se[i] <= 0 {
			return nil, fmt.Errorf("model: fit for %s did not converge (term %s)", outcome, names[i])
		}
		z := par[i] / se[i]
		coefs[i] = Coef{
			Name: names[i],
			Est:  par[i],
			SE:   se[i],
			Z:    z,
			P:    2 * stdNormal.Survival(math.Abs(z)),
			OR:   math.Exp(par[i]),
			ORLo: math.Exp(par[i] - zq*se[i]),
			ORHi: math.Exp(par[i] + zq*se[i]),
		}
	}

	smry := rslt.Summary()
	ors := smry.SetScale(math.Exp, "Parameters are shown as odds ratios")

	return &Fit{
		N:       da.NumObs(),
		LogLike: rslt.LogLike(),
		NParams: len(par),
		Coefs:   coefs,
		summary: smry.String() + "\n" + ors.String(),
	}, nil
}
