// Package report assembles the analysis report.  Everything numeric comes
// from the fitted models; the narrative interpretation is human output and
// is only ever passed through verbatim.
package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/BoweiZ98/Dementia-and-TBI/internal/diagnose"
	"github.com/BoweiZ98/Dementia-and-TBI/internal/model"
)

// TableN records the sample size of one derived table.
type TableN struct {
	Name string
	N    int
}

// CohortRow is one line of the descriptive cohort table.
type CohortRow struct {
	Label      string
	NoDementia string
	Dementia   string
}

// Model pairs a fitted model with its report heading.
type Model struct {
	Title string
	Table string // derived table the model was fit to
	Fit   *model.Fit
}

// LRTEntry is one interaction test against the baseline model.
type LRTEntry struct {
	Interaction string
	Result      model.LRTResult
}

// Report collects every section of the rendered analysis.
type Report struct {
	Title      string
	TableNs    []TableN
	Cohort     []CohortRow
	Selection  *model.Selection
	Models     []Model
	LRTs       []LRTEntry
	Separation []diagnose.SeparationWarning
	Influence  *diagnose.Influence
	Patterns   []diagnose.Pattern
	Charts     []string
	Narrative  string
}

// Markdown renders the full report.
func (r *Report) Markdown() string {

	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.Title)

	if len(r.Cohort) > 0 {
		b.WriteString("## Cohort\n\n")
		b.WriteString("| | No dementia | Dementia |\n|---|---|---|\n")
		for _, row := range r.Cohort {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", row.Label, row.NoDementia, row.Dementia)
		}
		b.WriteString("\n")
	}

	if len(r.TableNs) > 0 {
		b.WriteString("## Derived tables\n\n")
		b.WriteString("Each table is a filtered or recoded projection of its parent; the\n")
		b.WriteString("sample shrinks as filters apply, and every model below reports the N\n")
		b.WriteString("it was actually fit to.\n\n")
		b.WriteString("| Table | N |\n|---|---|\n")
		for _, t := range r.TableNs {
			fmt.Fprintf(&b, "| %s | %d |\n", t.Name, t.N)
		}
		b.WriteString("\n")
	}

	if r.Selection != nil {
		b.WriteString("## Confounder selection\n\n")
		fmt.Fprintf(&b, "Backward elimination at retention threshold %.2g over a ridge-stabilized fit.\n\n",
			model.RetentionThreshold)
		for _, st := range r.Selection.Trace {
			fmt.Fprintf(&b, "- dropped `%s` (p = %.3f)\n", st.Dropped, st.P)
		}
		if len(r.Selection.Trace) == 0 {
			b.WriteString("- no candidate dropped\n")
		}
		fmt.Fprintf(&b, "\nRetained: %s\n\n", codeList(r.Selection.Retained))
	}

	for _, m := range r.Models {
		fmt.Fprintf(&b, "## %s\n\n", m.Title)
		fmt.Fprintf(&b, "Fit to `%s` (N = %d), formula `%s`.\n\n", m.Table, m.Fit.N, m.Fit.Formula)
		b.WriteString(coefTable(m.Fit))
		if s := m.Fit.Summary(); s != "" {
			b.WriteString("\n```\n")
			b.WriteString(s)
			if !strings.HasSuffix(s, "\n") {
				b.WriteString("\n")
			}
			b.WriteString("```\n")
		}
		b.WriteString("\n")
	}

	if len(r.LRTs) > 0 {
		b.WriteString("## Interaction tests\n\n")
		b.WriteString("| Interaction | LR stat | df | p | retained |\n|---|---|---|---|---|\n")
		for _, e := range r.LRTs {
			fmt.Fprintf(&b, "| %s | %.3f | %d | %.3f | %s |\n",
				e.Interaction, e.Result.Stat, e.Result.DF, e.Result.P, yesno(e.Result.Reject))
		}
		b.WriteString("\n")
	}

	if len(r.Separation) > 0 {
		b.WriteString("## Separation warnings\n\n")
		for _, w := range r.Separation {
			scope := "full sample"
			if w.Subgroup != "" {
				scope = fmt.Sprintf("subgroup ever_tbi_w_loc = %s", w.Subgroup)
			}
			kind := "no cases"
			if w.AllCases {
				kind = "all cases"
			}
			fmt.Fprintf(&b, "- `%s` = %q (%s): %s among %d subjects\n",
				w.Variable, w.Level, scope, kind, w.N)
		}
		b.WriteString("\nConstant cells destabilize the logistic fit; the bucketings above were\n")
		b.WriteString("coarsened until the modeling sample was free of them.  No subgroup was dropped.\n\n")
	}

	if r.Influence != nil {
		b.WriteString("## Influence (grouped fit)\n\n")
		if len(r.Influence.Flagged) == 0 {
			b.WriteString("No covariate pattern exceeds the leverage or Cook's distance thresholds.\n\n")
		} else {
			b.WriteString("Patterns flagged for manual review (never excluded automatically):\n\n")
			b.WriteString("| Pattern | cases/trials | leverage | studentized | Cook's D |\n|---|---|---|---|---|\n")
			for _, i := range r.Influence.Flagged {
				pt := r.Patterns[i]
				fmt.Fprintf(&b, "| %s | %.0f/%.0f | %.3f | %.2f | %.3f |\n",
					strings.Join(pt.Levels, ", "), pt.Cases, pt.Trials,
					r.Influence.Leverage[i], r.Influence.Studentized[i], r.Influence.CooksD[i])
			}
			b.WriteString("\n")
		}
	}

	if len(r.Charts) > 0 {
		b.WriteString("## Charts\n\n")
		for _, c := range r.Charts {
			fmt.Fprintf(&b, "![%s](%s)\n\n", c, c)
		}
	}

	b.WriteString("## Notes\n\n")
	b.WriteString("The bucket boundaries (age 40 for first TBI, the 3-minute LOC split,\n")
	b.WriteString("and the 2+ TBI count) are analyst choices fixed for result parity with\n")
	b.WriteString("the original run; whether they were chosen independently of the data is\n")
	b.WriteString("not established here.\n\n")

	if r.Narrative != "" {
		b.WriteString("## Interpretation\n\n")
		b.WriteString(r.Narrative)
		if !strings.HasSuffix(r.Narrative, "\n") {
			b.WriteString("\n")
		}
	}

	return b.String()
}

// Write renders the report to path.
func (r *Report) Write(path string) error {
	if err := os.WriteFile(path, []byte(r.Markdown()), 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

func coefTable(ft *model.Fit) string {
	var b strings.Builder
	b.WriteString("| Term | Est | SE | OR | 95% CI | z | p |\n|---|---|---|---|---|---|---|\n")
	for _, c := range ft.Coefs {
		fmt.Fprintf(&b, "| %s | %.3f | %.3f | %.3f | (%.3f, %.3f) | %.2f | %.3f |\n",
			c.Name, c.Est, c.SE, c.OR, c.ORLo, c.ORHi, c.Z, c.P)
	}
	return b.String()
}

func codeList(xs []string) string {
	if len(xs) == 0 {
		return "none"
	}
	qs := make([]string, len(xs))
	for i, x := range xs {
		qs[i] = "`" + x + "`"
	}
	return strings.Join(qs, ", ")
}

func yesno(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
