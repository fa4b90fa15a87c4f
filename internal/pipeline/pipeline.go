// Package pipeline runs the analysis stages in order: load, recode, select
// confounders, fit the model sequence, test interactions, refit on grouped
// counts with influence diagnostics, and render the report.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kshedden/dstream/dstream"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/BoweiZ98/Dementia-and-TBI/internal/diagnose"
	"github.com/BoweiZ98/Dementia-and-TBI/internal/donor"
	"github.com/BoweiZ98/Dementia-and-TBI/internal/model"
	"github.com/BoweiZ98/Dementia-and-TBI/internal/plots"
	"github.com/BoweiZ98/Dementia-and-TBI/internal/report"
)

// Config carries the CLI inputs.  All statistical thresholds are literal
// constants in the stage definitions, not configuration.
type Config struct {
	Input     string
	OutDir    string
	Narrative string
	Logger    *zap.Logger
}

// Candidate confounders screened by backward elimination.
var candidates = []string{donor.VarSex, donor.VarAge, donor.VarAPOE, donor.ColEducation}

// The two interaction terms tested against the first-TBI-age model.
var interactions = []string{
	donor.VarSex + "*" + donor.VarTBIAge,
	donor.VarAge + "*" + donor.VarTBIAge,
}

// tables builds the full derived-table chain.  Recode failures surface as
// *donor.RecodeError.
func tables(input string) (d1, d2, d3, d4 dstream.Dstream, err error) {

	defer func() {
		if r := recover(); r != nil {
			re, ok := r.(*donor.RecodeError)
			if !ok {
				panic(r)
			}
			err = re
		}
	}()

	raw, err := donor.Open(input)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	d1 = donor.Recode(raw)
	d2 = donor.Donor2(d1)
	d3 = donor.Donor3(d2)
	d4 = donor.Donor4(d3)
	return d1, d2, d3, d4, nil
}

// Validate runs the fail-loud recode pass and logs the table chain sizes.
func Validate(cfg Config) error {

	d1, d2, d3, d4, err := tables(cfg.Input)
	if err != nil {
		return err
	}

	cfg.Logger.Info("derived table chain",
		zap.Int("donor", donor.NumRows(d1)),
		zap.Int("donor2", donor.NumRows(d2)),
		zap.Int("donor3", donor.NumRows(d3)),
		zap.Int("donor4", donor.NumRows(d4)),
	)
	return nil
}

// Inspect renders the pre-modeling exposure distribution charts without
// fitting anything.
func Inspect(cfg Config) error {

	_, d2, d3, _, err := tables(cfg.Input)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("pipeline: create %s: %w", cfg.OutDir, err)
	}

	_, err = exposureCharts(cfg, d2, d3)
	return err
}

// Run executes the whole pipeline and writes report.md plus the chart PNGs
// into the output directory.
func Run(cfg Config) error {

	lg := cfg.Logger

	d1, d2, d3, d4, err := tables(cfg.Input)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("pipeline: create %s: %w", cfg.OutDir, err)
	}

	rpt := &report.Report{
		Title: "TBI history and dementia in the donor cohort",
		TableNs: []report.TableN{
			{Name: "donor", N: donor.NumRows(d1)},
			{Name: "donor2 (APOE known)", N: donor.NumRows(d2)},
			{Name: "donor3 (exposures bucketed)", N: donor.NumRows(d3)},
			{Name: "donor4 (LOC duration known)", N: donor.NumRows(d4)},
		},
		Cohort: cohortTable(d1),
	}
	lg.Info("tables built",
		zap.Int("donor", donor.NumRows(d1)), zap.Int("donor4", donor.NumRows(d4)))

	// Stage 2: confounder screening on donor2.
	reflev := donor.RefLevels()
	sel, err := model.SelectConfounders(d2, donor.VarDementia, candidates, reflev)
	if err != nil {
		return err
	}
	rpt.Selection = sel
	lg.Info("confounders selected", zap.Strings("retained", sel.Retained))

	// Stage 3: exposure distributions, then the model sequence.
	charts, err := exposureCharts(cfg, d2, d3)
	if err != nil {
		return err
	}
	rpt.Charts = charts

	base := "1"
	for _, c := range sel.Retained {
		base += " + " + c
	}

	// Each model carries a single exposure bucketing.  The three bucketings
	// share the never-TBI donors as a common level, so any formula with two
	// of them is aliased and the fit is singular.
	m0, err := model.Logit(d3, base, donor.VarDementia, reflev)
	if err != nil {
		return err
	}
	fml1 := base + " + " + donor.VarTBIAge
	m1, err := model.Logit(d3, fml1, donor.VarDementia, reflev)
	if err != nil {
		return err
	}
	m2, err := model.Logit(d4, base+" + "+donor.VarLOC, donor.VarDementia, reflev)
	if err != nil {
		return err
	}
	m3, err := model.Logit(d4, base+" + "+donor.VarNumTBI, donor.VarDementia, reflev)
	if err != nil {
		return err
	}
	rpt.Models = []report.Model{
		{Title: "Model 0: confounders only", Table: "donor3", Fit: m0},
		{Title: "Model 1: confounders + age at first TBI", Table: "donor3", Fit: m1},
		{Title: "Model 2: confounders + LOC duration", Table: "donor4", Fit: m2},
		{Title: "Model 3: confounders + TBI count with LOC", Table: "donor4", Fit: m3},
	}

	// Stage 4: interaction terms, each tested against model 1.
	for _, ia := range interactions {
		full, err := model.Logit(d3, fml1+" + "+ia, donor.VarDementia, reflev)
		if err != nil {
			return err
		}
		res := model.LRT(full, m1)
		rpt.LRTs = append(rpt.LRTs, report.LRTEntry{Interaction: ia, Result: res})
		lg.Info("interaction tested", zap.String("term", ia),
			zap.Float64("p", res.P), zap.Bool("retained", res.Reject))
	}

	// Stage 5: separation scan, full sample and the never-TBI subgroup.
	cats := categorical(sel.Retained)
	preds := append(append([]string(nil), cats...), donor.VarTBIAge, donor.VarLOC, donor.VarNumTBI)
	rpt.Separation = diagnose.CheckSeparation(d4, donor.VarDementia, preds, donor.ColEverTBI, "N", lg)

	// Stage 6: grouped refit and influence diagnostics.  The refit carries
	// only the first-TBI-age exposure for the same aliasing reason as the
	// model sequence.
	aggPreds := append(append([]string(nil), cats...), donor.VarTBIAge)
	pats := diagnose.Aggregate(d4, donor.VarDementia, aggPreds)
	agg, da, err := diagnose.Refit(pats, aggPreds, reflev)
	if err != nil {
		return err
	}
	rpt.Models = append(rpt.Models, report.Model{
		Title: "Grouped binomial refit", Table: "donor4 (aggregated)", Fit: agg,
	})

	x, y, n, err := diagnose.DesignMatrix(da, agg)
	if err != nil {
		return err
	}
	beta := make([]float64, len(agg.Coefs))
	for i, c := range agg.Coefs {
		beta[i] = c.Est
	}
	inf, err := diagnose.Measures(x, n, y, beta)
	if err != nil {
		return err
	}
	rpt.Influence = inf
	rpt.Patterns = pats
	lg.Info("influence computed",
		zap.Int("patterns", len(pats)), zap.Int("flagged", len(inf.Flagged)))

	fn, err := plots.ResidualsVsFitted(cfg.OutDir, "resid_fitted", inf.Fitted, inf.Studentized)
	if err != nil {
		return err
	}
	rpt.Charts = append(rpt.Charts, filepath.Base(fn))

	fn, err = plots.InfluenceBubble(cfg.OutDir, "influence", inf.Leverage, inf.Studentized, inf.CooksD)
	if err != nil {
		return err
	}
	rpt.Charts = append(rpt.Charts, filepath.Base(fn))

	// Stage 7: narrative and report.
	if cfg.Narrative != "" {
		txt, err := os.ReadFile(cfg.Narrative)
		if err != nil {
			return fmt.Errorf("pipeline: read narrative: %w", err)
		}
		rpt.Narrative = string(txt)
	}

	out := filepath.Join(cfg.OutDir, "report.md")
	if err := rpt.Write(out); err != nil {
		return err
	}
	lg.Info("report written", zap.String("path", out))
	return nil
}

// exposureCharts renders the conditional-on-outcome distribution of each
// exposure before it enters the model sequence.
func exposureCharts(cfg Config, d2, d3 dstream.Dstream) ([]string, error) {

	var charts []string

	// Age at first TBI, raw years, donors with a TBI only.
	v0, v1 := numericByOutcome(d2, donor.ColAgeFirstTBI, true)
	fn, err := plots.HistogramByOutcome(cfg.OutDir, "age_first_tbi", "Age at first TBI by dementia status",
		"Age at first TBI (years)", v0, v1)
	if err != nil {
		return nil, err
	}
	charts = append(charts, filepath.Base(fn))

	locLevels := []string{donor.LevNever, donor.LevLocShort, donor.LevLocLong}
	n0, n1 := levelCounts(d3, donor.VarLOC, locLevels)
	fn, err = plots.BarsByOutcome(cfg.OutDir, "loc_duration", "Longest LOC duration by dementia status",
		locLevels, n0, n1)
	if err != nil {
		return nil, err
	}
	charts = append(charts, filepath.Base(fn))

	ntLevels := []string{"0", "1", "2-3"}
	n0, n1 = levelCounts(d3, donor.VarNumTBI, ntLevels)
	fn, err = plots.BarsByOutcome(cfg.OutDir, "num_tbi", "TBIs with LOC by dementia status",
		ntLevels, n0, n1)
	if err != nil {
		return nil, err
	}
	charts = append(charts, filepath.Base(fn))

	return charts, nil
}

// numericByOutcome splits a numeric column by dementia status.  With
// dropZero set, zero sentinel values are omitted from both groups.
func numericByOutcome(ds dstream.Dstream, col string, dropZero bool) ([]float64, []float64) {

	var v0, v1 []float64
	ds.Reset()
	for ds.Next() {
		y := ds.Get(donor.VarDementia).([]float64)
		x := ds.Get(col).([]float64)
		for i := range y {
			if dropZero && x[i] == 0 {
				continue
			}
			if y[i] == 1 {
				v1 = append(v1, x[i])
			} else {
				v0 = append(v0, x[i])
			}
		}
	}
	return v0, v1
}

// levelCounts tallies a categorical column by dementia status in the given
// level order.
func levelCounts(ds dstream.Dstream, col string, levels []string) ([]float64, []float64) {

	pos := make(map[string]int, len(levels))
	for i, l := range levels {
		pos[l] = i
	}
	n0 := make([]float64, len(levels))
	n1 := make([]float64, len(levels))

	ds.Reset()
	for ds.Next() {
		y := ds.Get(donor.VarDementia).([]float64)
		x := ds.Get(col).([]string)
		for i := range y {
			j, ok := pos[x[i]]
			if !ok {
				continue
			}
			if y[i] == 1 {
				n1[j]++
			} else {
				n0[j]++
			}
		}
	}
	return n0, n1
}

// cohortTable builds the descriptive table at the top of the report.
func cohortTable(ds dstream.Dstream) []report.CohortRow {

	v0, v1 := numericByOutcome(ds, donor.VarAge, false)
	e0, e1 := numericByOutcome(ds, donor.ColEducation, false)

	sexLevels := []string{"Female", "Male"}
	s0, s1 := levelCounts(ds, donor.VarSex, sexLevels)
	apoeLevels := []string{donor.LevNotCarrier, donor.LevCarrier, donor.LevUnknown}
	a0, a1 := levelCounts(ds, donor.VarAPOE, apoeLevels)

	rows := []report.CohortRow{
		{Label: "N", NoDementia: fmt.Sprintf("%d", len(v0)), Dementia: fmt.Sprintf("%d", len(v1))},
		{Label: "Age, mean (years)",
			NoDementia: fmt.Sprintf("%.1f", stat.Mean(v0, nil)),
			Dementia:   fmt.Sprintf("%.1f", stat.Mean(v1, nil))},
		{Label: "Education, mean (years)",
			NoDementia: fmt.Sprintf("%.1f", stat.Mean(e0, nil)),
			Dementia:   fmt.Sprintf("%.1f", stat.Mean(e1, nil))},
	}
	for i, l := range sexLevels {
		rows = append(rows, report.CohortRow{Label: l,
			NoDementia: fmt.Sprintf("%.0f", s0[i]), Dementia: fmt.Sprintf("%.0f", s1[i])})
	}
	for i, l := range apoeLevels {
		rows = append(rows, report.CohortRow{Label: "APOE e4 " + l,
			NoDementia: fmt.Sprintf("%.0f", a0[i]), Dementia: fmt.Sprintf("%.0f", a1[i])})
	}
	return rows
}

// categorical filters the retained confounders down to the categorical ones
// used in the grouped refit; continuous confounders have no covariate
// pattern to collapse on.
func categorical(retained []string) []string {
	var out []string
	for _, c := range retained {
		if c == donor.VarSex || c == donor.VarAPOE {
			out = append(out, c)
		}
	}
	return out
}
