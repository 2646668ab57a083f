package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/maaaruch/online-voting/internal/domain"
)

// Render writes the results of one election: a candidate/votes table
// followed by the winner or the tie.
func Render(w io.Writer, res domain.Results) error {
	if _, err := fmt.Fprintf(w, "Election Results for %s:\n", res.Election); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Candidate", "Votes"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	// Configure for Markdown table formatting
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")

	for _, c := range res.Counts {
		table.Append([]string{c.Candidate, fmt.Sprint(c.Votes)})
	}
	table.Render()

	if winner, ok := res.Outcome.Winner(); ok {
		_, err := fmt.Fprintf(w, "Winner is: %s\nTotal Votes: %d\n", winner, res.Outcome.Votes)
		return err
	}
	_, err := fmt.Fprintf(w, "Election for %s is tied.\nTied: %s (%d votes each)\n",
		res.Election, strings.Join(res.Outcome.Candidates, ", "), res.Outcome.Votes)
	return err
}

func String(res domain.Results) string {
	var buf bytes.Buffer
	_ = Render(&buf, res)
	return buf.String()
}
