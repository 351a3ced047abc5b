package cherrypick

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	v1 "github.com/milvus-io/cherry-pick-check/pkg/apis/cherrypick/v1"
)

type sourceRow struct {
	pr    v1.PullRequest
	cells map[string]v1.Result
}

// RenderTable prints one row per source PR with a status cell per target
// branch: the related PR number when picked, "x" when not, "?" when the
// lookup failed. Open source PRs sort first since those are the ones still
// needing backports, then newest first.
func RenderTable(out io.Writer, results []v1.Result, targets []string) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No PRs found.")
		return
	}

	grouped := make(map[int]*sourceRow)
	var order []int
	for _, r := range results {
		row, ok := grouped[r.SourcePR.Number]
		if !ok {
			row = &sourceRow{pr: r.SourcePR, cells: make(map[string]v1.Result)}
			grouped[r.SourcePR.Number] = row
			order = append(order, r.SourcePR.Number)
		}
		row.cells[r.TargetBranch] = r
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := grouped[order[i]].pr, grouped[order[j]].pr
		if (a.State == v1.PullRequestOpen) != (b.State == v1.PullRequestOpen) {
			return a.State == v1.PullRequestOpen
		}
		return a.Number > b.Number
	})

	header := []string{"PR #", "TITLE", "STATE", "CREATED", "MERGED"}
	header = append(header, targets...)

	w := tablewriter.NewWriter(out)
	w.SetHeader(header)
	w.SetAutoWrapText(false)
	for _, num := range order {
		row := grouped[num]
		line := []string{
			fmt.Sprintf("#%d", row.pr.Number),
			truncate(row.pr.Title, 35),
			string(row.pr.State),
			formatDay(row.pr.CreatedAt),
			formatDay(row.pr.MergedAt),
		}
		for _, target := range targets {
			line = append(line, formatCell(row.cells[target]))
		}
		w.Append(line)
	}
	w.Render()

	renderSummary(out, results, grouped, len(targets))
}

func formatCell(r v1.Result) string {
	switch r.Status {
	case v1.StatusPicked:
		if r.RelatedPR == nil {
			return "?"
		}
		if r.RelatedPR.State == v1.PullRequestMerged {
			return fmt.Sprintf("#%d", r.RelatedPR.Number)
		}
		return fmt.Sprintf("#%d (%s)", r.RelatedPR.Number, r.RelatedPR.State)
	case v1.StatusUnknown:
		return "?"
	default:
		return "x"
	}
}

func renderSummary(out io.Writer, results []v1.Result, grouped map[int]*sourceRow, branchCount int) {
	openPRs := 0
	for _, row := range grouped {
		if row.pr.State == v1.PullRequestOpen {
			openPRs++
		}
	}

	pickedMerged, pickedOpen, notPicked, unknown := 0, 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case v1.StatusPicked:
			if r.RelatedPR != nil && r.RelatedPR.State == v1.PullRequestMerged {
				pickedMerged++
			} else {
				pickedOpen++
			}
		case v1.StatusUnknown:
			unknown++
		default:
			notPicked++
		}
	}

	fmt.Fprintf(out, "\nSummary: %d PRs (%d open, %d merged) across %d branches\n",
		len(grouped), openPRs, len(grouped)-openPRs, branchCount)
	fmt.Fprintf(out, "  Cherry-picked: %d merged, %d open, %d not picked", pickedMerged, pickedOpen, notPicked)
	if unknown > 0 {
		fmt.Fprintf(out, ", %d unknown", unknown)
	}
	fmt.Fprintln(out)
}

func formatDay(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("01-02")
}

func truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen-3] + "..."
}
