package diagnose

import (
	"sort"

	"github.com/kshedden/dstream/dstream"
	"go.uber.org/zap"
)

// SeparationWarning reports a predictor level whose outcome is constant, the
// condition behind quasi-complete separation in a logistic fit.  Subgroup is
// empty for the full-sample scan.
type SeparationWarning struct {
	Variable string
	Level    string
	Subgroup string
	N        int
	AllCases bool
}

// CheckSeparation scans each categorical predictor for levels in which the
// outcome never varies, both over the full sample and within the subgroup
// where subgroupVar equals subgroupLevel.  Findings are logged and returned;
// the mitigation (coarser bucketing) is an analyst decision, so nothing is
// dropped or refit here.
func CheckSeparation(ds dstream.Dstream, outcome string, preds []string, subgroupVar, subgroupLevel string, lg *zap.Logger) []SeparationWarning {

	var warns []SeparationWarning

	for _, scope := range []string{"", subgroupLevel} {
		for _, pred := range preds {
			warns = append(warns, scanLevels(ds, outcome, pred, subgroupVar, scope)...)
		}
	}

	for _, w := range warns {
		lg.Warn("possible quasi-complete separation",
			zap.String("variable", w.Variable),
			zap.String("level", w.Level),
			zap.String("subgroup", w.Subgroup),
			zap.Int("n", w.N),
			zap.Bool("all_cases", w.AllCases),
		)
	}

	return warns
}

// scanLevels tallies outcome counts per level of pred, optionally restricted
// to rows where subgroupVar == subgroupLevel, and reports constant cells.
func scanLevels(ds dstream.Dstream, outcome, pred, subgroupVar, subgroupLevel string) []SeparationWarning {

	type cell struct {
		n     int
		cases int
	}
	tab := make(map[string]*cell)

	ds.Reset()
	for ds.Next() {
		y := ds.Get(outcome).([]float64)
		lv := ds.Get(pred).([]string)
		var sub []string
		if subgroupLevel != "" {
			sub = ds.Get(subgroupVar).([]string)
		}
		for i := range y {
			if subgroupLevel != "" && sub[i] != subgroupLevel {
				continue
			}
			c := tab[lv[i]]
			if c == nil {
				c = &cell{}
				tab[lv[i]] = c
			}
			c.n++
			if y[i] == 1 {
				c.cases++
			}
		}
	}

	levels := make([]string, 0, len(tab))
	for lev := range tab {
		levels = append(levels, lev)
	}
	sort.Strings(levels)

	var warns []SeparationWarning
	for _, lev := range levels {
		c := tab[lev]
		if c.n == 0 {
			continue
		}
		if c.cases == 0 || c.cases == c.n {
			warns = append(warns, SeparationWarning{
				Variable: pred,
				Level:    lev,
				Subgroup: subgroupLevel,
				N:        c.n,
				AllCases: c.cases == c.n,
			})
		}
	}
	return warns
}
