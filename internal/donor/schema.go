// Package donor loads the donor information table and builds the recoded
// analysis tables.  Each derived table is a new dstream; nothing is updated
// in place.
package donor

import (
	"fmt"
	"io"
	"os"

	"github.com/kshedden/dstream/dstream"
)

// Raw column names in DonorInformation.csv.  Only these columns are read;
// the post-hoc diagnosis detail columns (dsm_iv_clinical_diagnosis, braak,
// cerad, nia_reagan) are never loaded, so they cannot leak into predictors.
const (
	ColDemented    = "act_demented"
	ColSex         = "sex"
	ColAge         = "age"
	ColAPOE        = "apo_e4_allele"
	ColEducation   = "education_years"
	ColAgeFirstTBI = "age_at_first_tbi"
	ColLOCDuration = "longest_loc_duration"
	ColNumTBI      = "num_tbi_w_loc"
	ColEverTBI     = "ever_tbi_w_loc"
)

// Recoded column names added to the donor tables.
const (
	VarDementia = "Dementia"
	VarSex      = "Sex"
	VarAge      = "Age"
	VarAPOE     = "Apoe4"
	VarTBIAge   = "TbiAge"
	VarLOC      = "LocDur"
	VarNumTBI   = "NumTbi"
)

const chunkSize = 200

// FromCSV reads the raw donor table from r.  The stream is fully
// materialized before returning, so r may be closed afterwards.
func FromCSV(r io.Reader) dstream.Dstream {

	tc := &dstream.CSVTypeConf{
		Float64: []string{ColEducation, ColAgeFirstTBI, ColNumTBI},
		String:  []string{ColDemented, ColSex, ColAge, ColAPOE, ColLOCDuration, ColEverTBI},
	}

	ds := dstream.FromCSV(r).TypeConf(tc).ChunkSize(chunkSize).HasHeader().Done()

	return dstream.MemCopy(ds, false)
}

// Open reads the raw donor table from the CSV file at path.
func Open(path string) (dstream.Dstream, error) {

	fid, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("donor: open %s: %w", path, err)
	}
	defer fid.Close()

	return FromCSV(fid), nil
}

// NumRows returns the number of rows in a materialized table.
func NumRows(ds dstream.Dstream) int {
	return ds.NumObs()
}
