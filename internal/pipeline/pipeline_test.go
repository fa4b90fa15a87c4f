package pipeline

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BoweiZ98/Dementia-and-TBI/internal/donor"
)

const testCSV = `act_demented,sex,age,apo_e4_allele,education_years,age_at_first_tbi,longest_loc_duration,num_tbi_w_loc,ever_tbi_w_loc
No Dementia,F,77,N,16,0,Unknown or N/A,0,N
Dementia,M,90-94,Y,12,30,1-2 min,1,Y
No Dementia,F,100+,N/A,14,0,Unknown or N/A,0,N
Dementia,M,95-99,N,18,45,Unknown or N/A,2,Y
No Dementia,F,83,Y,20,50,3-5 min,1,Y
Dementia,F,88,N,13,0,Unknown or N/A,0,N
No Dementia,M,79,N,15,22,< 10 sec,1,Y
`

func writeTestCSV(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "DonorInformation.csv")
	require.NoError(t, os.WriteFile(path, []byte(testCSV), 0o644))
	return path
}

func TestTablesChain(t *testing.T) {

	d1, d2, d3, d4, err := tables(writeTestCSV(t))
	require.NoError(t, err)

	assert.Equal(t, 7, donor.NumRows(d1))
	assert.Equal(t, 6, donor.NumRows(d2)) // one unknown APOE
	assert.Equal(t, 6, donor.NumRows(d3))
	assert.Equal(t, 5, donor.NumRows(d4)) // one unrecorded LOC duration
}

func TestTablesSurfacesRecodeError(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.csv")
	bad := "act_demented,sex,age,apo_e4_allele,education_years,age_at_first_tbi,longest_loc_duration,num_tbi_w_loc,ever_tbi_w_loc\n" +
		"No Dementia,F,77,maybe,16,0,Unknown or N/A,0,N\n"
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, _, _, _, err := tables(path)
	var re *donor.RecodeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, donor.ColAPOE, re.Column)
	assert.Equal(t, "maybe", re.Value)
}

func TestValidate(t *testing.T) {

	cfg := Config{Input: writeTestCSV(t), OutDir: t.TempDir(), Logger: zap.NewNop()}
	require.NoError(t, Validate(cfg))
}

func TestCohortTable(t *testing.T) {

	d1, _, _, _, err := tables(writeTestCSV(t))
	require.NoError(t, err)

	rows := cohortTable(d1)
	require.NotEmpty(t, rows)
	assert.Equal(t, "N", rows[0].Label)
	assert.Equal(t, "4", rows[0].NoDementia)
	assert.Equal(t, "3", rows[0].Dementia)
}

// writeSyntheticCohort generates a donor file large enough to drive the
// whole pipeline: male sex and APOE carriage raise the dementia rate so the
// screening retains at least one confounder, and the TBI columns cover every
// recoded level including unrecorded LOC durations and unknown genotypes.
func writeSyntheticCohort(t *testing.T, n int, seed int64) string {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	locLevels := []string{
		"< 10 sec", "10 sec - 1 min", "1-2 min",
		"3-5 min", "6-9 min", "10 min - 1 hr", "> 1 hr",
	}

	var b strings.Builder
	b.WriteString("act_demented,sex,age,apo_e4_allele,education_years,age_at_first_tbi,longest_loc_duration,num_tbi_w_loc,ever_tbi_w_loc\n")
	for i := 0; i < n; i++ {
		sex := "F"
		if rng.Float64() < 0.5 {
			sex = "M"
		}
		apoe := "N"
		switch {
		case rng.Float64() < 0.05:
			apoe = "N/A"
		case rng.Float64() < 0.3:
			apoe = "Y"
		}
		age := 75 + rng.Intn(25)
		edu := 10 + rng.Intn(11)

		firstTBI, ntbi := 0, 0
		loc := "Unknown or N/A"
		ever := "N"
		if rng.Float64() < 0.4 {
			firstTBI = 15 + rng.Intn(60)
			ntbi = 1 + rng.Intn(3)
			ever = "Y"
			if rng.Float64() >= 0.1 { // ~10% unrecorded durations
				loc = locLevels[rng.Intn(len(locLevels))]
			}
		}

		p := 0.25
		if sex == "M" {
			p += 0.18
		}
		if apoe == "Y" {
			p += 0.2
		}
		dem := "No Dementia"
		if rng.Float64() < p {
			dem = "Dementia"
		}

		fmt.Fprintf(&b, "%s,%s,%d,%s,%d,%d,%s,%d,%s\n",
			dem, sex, age, apoe, edu, firstTBI, loc, ntbi, ever)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "DonorInformation.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestRunEndToEnd(t *testing.T) {

	input := writeSyntheticCohort(t, 160, 9)
	outdir := t.TempDir()

	narrative := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(narrative, []byte("No association survives adjustment.\n"), 0o644))

	cfg := Config{Input: input, OutDir: outdir, Narrative: narrative, Logger: zap.NewNop()}
	require.NoError(t, Run(cfg))

	b, err := os.ReadFile(filepath.Join(outdir, "report.md"))
	require.NoError(t, err)
	md := string(b)
	assert.Contains(t, md, "## Derived tables")
	assert.Contains(t, md, "## Confounder selection")
	assert.Contains(t, md, "## Interaction tests")
	assert.Contains(t, md, "## Interpretation")
	assert.Contains(t, md, "No association survives adjustment.")

	for _, png := range []string{
		"age_first_tbi.png", "loc_duration.png", "num_tbi.png",
		"resid_fitted.png", "influence.png",
	} {
		_, err := os.Stat(filepath.Join(outdir, png))
		assert.NoError(t, err, png)
	}
}

func TestInspectEndToEnd(t *testing.T) {

	input := writeSyntheticCohort(t, 120, 17)
	outdir := t.TempDir()

	cfg := Config{Input: input, OutDir: outdir, Logger: zap.NewNop()}
	require.NoError(t, Inspect(cfg))

	for _, png := range []string{"age_first_tbi.png", "loc_duration.png", "num_tbi.png"} {
		_, err := os.Stat(filepath.Join(outdir, png))
		assert.NoError(t, err, png)
	}
}

func TestCategoricalRetained(t *testing.T) {

	got := categorical([]string{donor.VarAge, donor.VarSex, donor.ColEducation, donor.VarAPOE})
	assert.Equal(t, []string{donor.VarSex, donor.VarAPOE}, got)
}
