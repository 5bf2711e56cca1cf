package reporting

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/xkilldash9x/ceqfill/internal/survey"
)

// NewTable returns a rounded table writer mirroring to w.
func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// RenderSummary prints one row per attempted survey and the run totals.
func RenderSummary(w io.Writer, st *survey.RunState) {
	t := NewTable(w)
	t.SetTitle(fmt.Sprintf("Run %s: %s after %d round(s)", st.RunID, st.Final, st.Rounds))
	t.AppendHeader(table.Row{"Round", "#", "Survey", "Submitted", "Single", "Multi", "Drop-down", "Text", "Error"})
	for _, item := range st.Items {
		submitted := text.FgRed.Sprint("no")
		if item.Submitted {
			submitted = text.FgGreen.Sprint("yes")
		}
		t.AppendRow(table.Row{
			item.Round,
			item.Index + 1,
			item.Text,
			submitted,
			item.Counts.SingleChoice,
			item.Counts.MultiChoice,
			item.Counts.DropDown,
			item.Counts.FreeText,
			item.Error,
		})
	}
	t.AppendFooter(table.Row{"", "", "Completed", st.Completed, "Failed", st.Failed, "Outstanding", st.Outstanding, ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 9, WidthMax: 60},
	})
	t.Render()
}
