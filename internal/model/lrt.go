package model

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// LRTResult is a likelihood-ratio comparison of two nested fits.
type LRTResult struct {
	Stat   float64
	DF     int
	P      float64
	Reject bool
}

// LRT compares a full fit against a reduced fit nested within it.  The
// statistic is twice the log-likelihood difference, referred to a
// chi-squared distribution with degrees of freedom equal to the parameter
// count difference.  Reject is decided at Alpha.
func LRT(full, reduced *Fit) LRTResult {

	df := full.NParams - reduced.NParams
	stat := 2 * (full.LogLike - reduced.LogLike)

	chi := distuv.ChiSquared{K: float64(df)}
	p := chi.Survival(stat)

	return LRTResult{Stat: stat, DF: df, P: p, Reject: p < Alpha}
}
