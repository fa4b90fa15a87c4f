// Package diagnose collapses the donor table to grouped binomial counts,
// refits the proportion model, and computes the influence measures behind
// the diagnostic plots.  Everything here flags rows for human review; no
// row is ever excluded automatically.
package diagnose

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/kshedden/dstream/dstream"

	"github.com/BoweiZ98/Dementia-and-TBI/internal/model"
)

// Column names in the aggregated table.
const (
	ColProp   = "prop"
	ColTrials = "ntot"
)

// Pattern is one covariate pattern: a unique combination of categorical
// predictor levels with its dementia case and subject counts.
type Pattern struct {
	Levels []string
	Cases  float64
	Trials float64
}

// Aggregate collapses ds to one row per unique combination of the named
// categorical predictors, counting dementia cases and total subjects.
// Pattern order follows first appearance in the stream.
func Aggregate(ds dstream.Dstream, outcome string, preds []string) []Pattern {

	counts := make(map[string]*Pattern)
	var order []string

	ds.Reset()
	for ds.Next() {
		y := ds.Get(outcome).([]float64)
		cols := make([][]string, len(preds))
		for j, p := range preds {
			cols[j] = ds.Get(p).([]string)
		}
		for i := range y {
			parts := make([]string, len(preds))
			for j := range preds {
				parts[j] = cols[j][i]
			}
			key := strings.Join(parts, "\x1f")
			pt := counts[key]
			if pt == nil {
				pt = &Pattern{Levels: parts}
				counts[key] = pt
				order = append(order, key)
			}
			pt.Trials++
			pt.Cases += y[i]
		}
	}

	out := make([]Pattern, len(order))
	for i, k := range order {
		out[i] = *counts[k]
	}
	return out
}

// Stream rebuilds the aggregated patterns as a dstream with the predictor
// columns plus the observed proportion and trial count.  The construction
// goes through an in-memory CSV because that is the supported entry point
// for building a stream from scratch.
func Stream(pats []Pattern, preds []string) (dstream.Dstream, error) {

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append(append([]string(nil), preds...), ColProp, ColTrials)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("diagnose: write aggregate header: %w", err)
	}

	for _, pt := range pats {
		rec := append([]string(nil), pt.Levels...)
		rec = append(rec,
			strconv.FormatFloat(pt.Cases/pt.Trials, 'g', -1, 64),
			strconv.FormatFloat(pt.Trials, 'g', -1, 64))
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("diagnose: write aggregate row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("diagnose: flush aggregate table: %w", err)
	}

	tc := &dstream.CSVTypeConf{
		Float64: []string{ColProp, ColTrials},
		String:  preds,
	}
	ds := dstream.FromCSV(&buf).TypeConf(tc).ChunkSize(50).HasHeader().Done()

	return dstream.MemCopy(ds, false), nil
}

// Refit fits the binomial proportion model to the aggregated patterns,
// weighted by trials.  It returns the fit together with the design stream
// so influence measures can be computed against the same matrix.
func Refit(pats []Pattern, preds []string, reflev map[string]string) (*model.Fit, dstream.Dstream, error) {

	ds, err := Stream(pats, preds)
	if err != nil {
		return nil, nil, err
	}

	fml := "1 + " + strings.Join(preds, " + ")
	return model.LogitWeighted(ds, fml, ColProp, ColTrials, reflev)
}
