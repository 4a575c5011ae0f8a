package report

import (
	"io"
	"strconv"

	"github.com/nao1215/forestloss/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs analyses in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation, which gives us tables, mermaid charts and GitHub-flavored
// alerts without hand-built string concatenation.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the analysis in Markdown format.
func (w *MarkdownWriter) Write(analysis *model.Analysis) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, analysis)
	w.writeYearlyLoss(md, analysis)
	w.writeSummary(md, analysis)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with farm information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, analysis *model.Analysis) {
	md.H1("Deforestation Report of " + analysis.FarmID)
	md.PlainText("")

	rows := [][]string{
		{"Cluster", clusterTitle(analysis.Cluster)},
		{"Farm", "`" + analysis.FarmID + "`"},
		{"Analysis ID", "`" + analysis.ID + "`"},
		{"Analyzed At", formatTime(analysis.StartedAt)},
		{"Farm Area", formatAcres(analysis.RegionAcres) + " acres"},
	}
	if analysis.Dataset != "" {
		rows = append(rows, []string{"Dataset", "`" + analysis.Dataset + "`"})
	}
	rows = append(rows, []string{"Status", w.getStatusText(analysis)})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// getStatusText returns the status text based on analysis state.
func (w *MarkdownWriter) getStatusText(analysis *model.Analysis) string {
	if analysis.ErrorMessage != "" {
		return "❌ Error - " + analysis.ErrorMessage
	}
	if analysis.CompletedAt.IsZero() {
		return "⚠️ Incomplete"
	}
	return "✅ Complete"
}

// writeYearlyLoss writes the per-year table and the distribution chart.
func (w *MarkdownWriter) writeYearlyLoss(md *markdown.Markdown, analysis *model.Analysis) {
	md.H2("Yearly Forest Loss")
	md.PlainText("")

	if len(analysis.Result) == 0 {
		md.PlainText("No years were analyzed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(analysis.Result)+1)
	for _, yl := range analysis.Result {
		rows = append(rows, []string{strconv.Itoa(yl.Year), formatAcres(yl.Acres)})
	}
	rows = append(rows, []string{"**Total**", "**" + formatAcres(analysis.Summary.TotalAcres) + "**"})

	md.Table(markdown.TableSet{
		Header: []string{"Year", "Loss (acres)"},
		Rows:   rows,
	})
	md.PlainText("")

	if analysis.Summary.TotalAcres > 0 {
		w.writePieChart(md, analysis.Result)
	}
}

// writePieChart writes a mermaid pie chart of loss by year.
// Years without loss are left out of the chart.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, result model.YearlyLossResult) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Forest Loss by Year (acres)"),
		piechart.WithShowData(true),
	)

	for _, yl := range result {
		if yl.Acres > 0 {
			chart.LabelAndFloatValue(strconv.Itoa(yl.Year), yl.Acres)
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeSummary writes derived statistics followed by a risk alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, analysis *model.Analysis) {
	if len(analysis.Result) == 0 {
		return
	}

	s := analysis.Summary
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Statistic", "Value"},
		Rows: [][]string{
			{"Mean Loss", formatAcres(s.MeanAcres) + " acres/year"},
			{"Peak Year", peakText(s)},
			{"Trend", trendText(s)},
			{"Share of Farm", formatPercent(s.LossShare)},
			{"Risk", "**" + s.Risk.String() + "**"},
		},
	})
	md.PlainText("")

	w.writeAlert(md, s)
}

// writeAlert writes an alert matching the risk level.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s model.Summary) {
	switch s.Risk {
	case model.RiskHigh:
		md.Cautionf("%s %s of the farm area was lost.", s.Risk.Description(), formatPercent(s.LossShare))
	case model.RiskMedium:
		md.Warningf("%s %s of the farm area was lost.", s.Risk.Description(), formatPercent(s.LossShare))
	case model.RiskLow:
		md.Note(s.Risk.Description())
	default:
		md.Tip(s.Risk.Description())
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [forestloss](https://github.com/nao1215/forestloss)*")
}
