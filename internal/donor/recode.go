package donor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kshedden/dstream/dstream"
)

// Recoded factor levels.
const (
	LevNever      = "never"
	LevBefore40   = "before 40"
	LevAfter40    = "after 40"
	LevLocShort   = "under 3 min"
	LevLocLong    = "3 min or more"
	LevCarrier    = "carrier"
	LevNotCarrier = "not carrier"
	LevUnknown    = "unknown"

	// LevLocMissing marks a LOC duration that was not recorded for a TBI
	// that did occur.  Rows with this level are removed at donor4.
	LevLocMissing = ""
)

// RecodeError identifies a raw value that no mapping covers.  Recoding never
// converts an unmapped value to missing; it fails with this error so that
// data entry drift cannot silently change the sample.
type RecodeError struct {
	Column string
	Value  string
}

func (e *RecodeError) Error() string {
	return fmt.Sprintf("donor: column %s: unmapped value %q", e.Column, e.Value)
}

// Dementia collapses the clinical diagnosis label to a binary outcome:
// "No Dementia" maps to 0 and any dementia diagnosis maps to 1.  An already
// recoded value ("0" or "1") maps to itself, so the recode is idempotent.
func Dementia(label string) float64 {
	if label == "No Dementia" || label == "0" {
		return 0
	}
	return 1
}

// Sex expands the single letter sex code.
func Sex(code string) (string, error) {
	switch code {
	case "M", "Male":
		return "Male", nil
	case "F", "Female":
		return "Female", nil
	}
	return "", &RecodeError{ColSex, code}
}

// Age maps an age label to a representative numeric value.  The open-ended
// "100+" bucket maps to 100, five-year bins map to their midpoint, and plain
// numeric strings parse through unchanged.
func Age(s string) (float64, error) {

	if strings.HasSuffix(s, "+") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "+"), 64)
		if err != nil {
			return 0, &RecodeError{ColAge, s}
		}
		return v, nil
	}

	if i := strings.Index(s, "-"); i > 0 {
		lo, err1 := strconv.ParseFloat(s[:i], 64)
		hi, err2 := strconv.ParseFloat(s[i+1:], 64)
		if err1 != nil || err2 != nil {
			return 0, &RecodeError{ColAge, s}
		}
		return (lo + hi) / 2, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &RecodeError{ColAge, s}
	}
	return v, nil
}

// APOE maps the genotype flag to a three-level factor.  "unknown" is a valid
// analysis category here; it is filtered only when building donor2.
func APOE(code string) (string, error) {
	switch code {
	case "Y", LevCarrier:
		return LevCarrier, nil
	case "N", LevNotCarrier:
		return LevNotCarrier, nil
	case "N/A", LevUnknown:
		return LevUnknown, nil
	}
	return "", &RecodeError{ColAPOE, code}
}

// Raw LOC duration levels on each side of the three-minute split.
var (
	locShort = map[string]bool{
		"< 10 sec":       true,
		"10 sec - 1 min": true,
		"1-2 min":        true,
	}
	locLong = map[string]bool{
		"3-5 min":       true,
		"6-9 min":       true,
		"10 min - 1 hr": true,
		"> 1 hr":        true,
	}
)

// LOCDuration collapses the eight raw duration levels to three.  The literal
// "Unknown or N/A" means the subject never lost consciousness only when the
// companion TBI count is zero; with a nonzero count the duration is
// unrecorded for an event that did occur, and the missing level marks the
// row for removal at donor4.  The rule is a joint predicate over both
// columns, never a per-column lookup.
func LOCDuration(dur string, numTBI float64) (string, error) {
	switch {
	case locShort[dur]:
		return LevLocShort, nil
	case locLong[dur]:
		return LevLocLong, nil
	case dur == "Unknown or N/A":
		if numTBI == 0 {
			return LevNever, nil
		}
		return LevLocMissing, nil
	case dur == LevNever || dur == LevLocShort || dur == LevLocLong:
		return dur, nil
	}
	return "", &RecodeError{ColLOCDuration, dur}
}

// NumTBI collapses the count of TBIs with LOC to {0, 1, 2-3}.
func NumTBI(n float64) string {
	switch {
	case n <= 0:
		return "0"
	case n == 1:
		return "1"
	}
	return "2-3"
}

// AgeFirstTBI buckets the age at first TBI at 40 years.  The zero sentinel
// means the subject never had a TBI.
func AgeFirstTBI(a float64) string {
	switch {
	case a == 0:
		return LevNever
	case a < 40:
		return LevBefore40
	}
	return LevAfter40
}

// Recode builds the donor table from the raw stream: the binary outcome plus
// cleaned demographic columns.  Mapping failures panic with a *RecodeError;
// Run recovers them at the pipeline boundary.
func Recode(raw dstream.Dstream) dstream.Dstream {

	ds := raw

	f := func(v map[string]interface{}, x interface{}) {
		y := x.([]float64)
		lab := v[ColDemented].([]string)
		for i := range lab {
			y[i] = Dementia(lab[i])
		}
	}
	ds = dstream.Generate(ds, VarDementia, f, dstream.Float64)

	f = func(v map[string]interface{}, x interface{}) {
		z := x.([]string)
		sx := v[ColSex].([]string)
		for i := range sx {
			s, err := Sex(sx[i])
			if err != nil {
				panic(err)
			}
			z[i] = s
		}
	}
	ds = dstream.Generate(ds, VarSex, f, dstream.String)

	f = func(v map[string]interface{}, x interface{}) {
		z := x.([]float64)
		ag := v[ColAge].([]string)
		for i := range ag {
			a, err := Age(ag[i])
			if err != nil {
				panic(err)
			}
			z[i] = a
		}
	}
	ds = dstream.Generate(ds, VarAge, f, dstream.Float64)

	f = func(v map[string]interface{}, x interface{}) {
		z := x.([]string)
		ap := v[ColAPOE].([]string)
		for i := range ap {
			a, err := APOE(ap[i])
			if err != nil {
				panic(err)
			}
			z[i] = a
		}
	}
	ds = dstream.Generate(ds, VarAPOE, f, dstream.String)

	ds.Reset()
	return dstream.MemCopy(ds, false)
}

// Donor2 removes donors whose APOE genotype is unknown.
func Donor2(donor dstream.Dstream) dstream.Dstream {

	apoeKnown := func(x interface{}, keep []bool) bool {
		v := x.([]string)
		for i := range v {
			if v[i] == LevUnknown {
				keep[i] = false
			}
		}
		return true
	}

	donor.Reset()
	ds := dstream.Filter(donor, map[string]dstream.FilterFunc{VarAPOE: apoeKnown})
	return dstream.MemCopy(ds, false)
}

// Donor3 adds the bucketed exposure columns: first-TBI age group, collapsed
// LOC duration, and collapsed TBI count.  No rows are dropped here.
func Donor3(donor2 dstream.Dstream) dstream.Dstream {

	ds := donor2

	f := func(v map[string]interface{}, x interface{}) {
		z := x.([]string)
		ft := v[ColAgeFirstTBI].([]float64)
		for i := range ft {
			z[i] = AgeFirstTBI(ft[i])
		}
	}
	ds = dstream.Generate(ds, VarTBIAge, f, dstream.String)

	f = func(v map[string]interface{}, x interface{}) {
		z := x.([]string)
		dur := v[ColLOCDuration].([]string)
		nt := v[ColNumTBI].([]float64)
		for i := range dur {
			g, err := LOCDuration(dur[i], nt[i])
			if err != nil {
				panic(err)
			}
			z[i] = g
		}
	}
	ds = dstream.Generate(ds, VarLOC, f, dstream.String)

	f = func(v map[string]interface{}, x interface{}) {
		z := x.([]string)
		nt := v[ColNumTBI].([]float64)
		for i := range nt {
			z[i] = NumTBI(nt[i])
		}
	}
	ds = dstream.Generate(ds, VarNumTBI, f, dstream.String)

	ds.Reset()
	return dstream.MemCopy(ds, false)
}

// Donor4 removes rows whose LOC duration is unrecorded for a TBI that did
// occur.  This is the only place LOC missingness leaves the sample, and the
// resulting N must be reported with any model fit to this table.
func Donor4(donor3 dstream.Dstream) dstream.Dstream {

	locKnown := func(x interface{}, keep []bool) bool {
		v := x.([]string)
		for i := range v {
			if v[i] == LevLocMissing {
				keep[i] = false
			}
		}
		return true
	}

	donor3.Reset()
	ds := dstream.Filter(donor3, map[string]dstream.FilterFunc{VarLOC: locKnown})
	return dstream.MemCopy(ds, false)
}

// RefLevels returns the reference level for each recoded factor, used when
// expanding model formulas.
func RefLevels() map[string]string {
	return map[string]string{
		VarSex:    "Female",
		VarAPOE:   LevNotCarrier,
		VarTBIAge: LevNever,
		VarLOC:    LevNever,
		VarNumTBI: "0",
	}
}
