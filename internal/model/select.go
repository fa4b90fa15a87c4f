package model

import (
	"math"
	"strings"

	"github.com/kshedden/dstream/dstream"
)

// RetentionThreshold is the backward-elimination cutoff.  It is looser than
// the 0.05 significance level on purpose: the goal is confounder retention,
// not effect detection, and eliminating aggressively risks residual
// confounding.
const RetentionThreshold = 0.2

// screenPenalty is the small ridge weight applied to the screening fits, to
// keep coefficient estimates stable when cells are sparse.
const screenPenalty = 0.05

// EliminationStep records one removal during backward elimination.
type EliminationStep struct {
	Dropped   string
	P         float64
	Remaining []string
}

// Selection is the outcome of backward elimination over the candidate
// confounders.
type Selection struct {
	Retained []string
	Trace    []EliminationStep
}

// SelectConfounders fits a ridge-stabilized logistic regression of outcome
// on all candidates, then repeatedly removes the candidate with the largest
// p-value above RetentionThreshold until every remaining candidate is below
// threshold or none remain.  Candidates are removed as whole variables: a
// categorical candidate's p-value is the smallest across its expanded dummy
// terms, so a variable survives if any of its levels is informative.
func SelectConfounders(ds dstream.Dstream, outcome string, candidates []string, reflev map[string]string) (*Selection, error) {

	remaining := append([]string(nil), candidates...)
	var trace []EliminationStep

	for len(remaining) > 0 {

		fml := "1 + " + strings.Join(remaining, " + ")
		da := Design(ds, fml, reflev, outcome)

		// Penalize every design column except the intercept.
		l2 := make(map[string]float64)
		for _, na := range da.Names() {
			if na != outcome && na != interceptName {
				l2[na] = screenPenalty
			}
		}

		ft, err := FitData(da, outcome, "", l2)
		if err != nil {
			return nil, err
		}

		worst := ""
		worstP := -1.0
		for _, c := range remaining {
			p := candidateP(ft, c)
			if p > worstP {
				worstP = p
				worst = c
			}
		}

		if worstP <= RetentionThreshold {
			break
		}

		remaining = remove(remaining, worst)
		trace = append(trace, EliminationStep{
			Dropped:   worst,
			P:         worstP,
			Remaining: append([]string(nil), remaining...),
		})
	}

	return &Selection{Retained: remaining, Trace: trace}, nil
}

// candidateP returns the smallest Wald p-value among the fitted terms that
// expand from the candidate variable.  The formula package names expanded
// terms with the source variable as a prefix, so prefix matching groups a
// categorical variable's levels back together.
func candidateP(ft *Fit, candidate string) float64 {
	p := math.Inf(1)
	for _, c := range ft.Coefs {
		if c.Name == interceptName {
			continue
		}
		if c.Name == candidate || strings.HasPrefix(c.Name, candidate) {
			if c.P < p {
				p = c.P
			}
		}
	}
	return p
}

func remove(xs []string, x string) []string {
	var out []string
	for _, v := range xs {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}
