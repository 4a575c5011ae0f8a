package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/forestloss/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors so the output can be piped to files or other tools.
type SimpleWriter struct {
	baseWriter

	// verbose enables additional detail in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the analysis in human-readable format.
func (w *SimpleWriter) Write(analysis *model.Analysis) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, analysis)
	w.writeYearlyLoss(&sb, analysis)
	w.writeSummary(&sb, analysis)
	if w.verbose {
		w.writeDetails(&sb, analysis)
	}
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeSection writes a section title between two rules.
func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeHeader writes the report header with farm information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, analysis *model.Analysis) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                       DEFORESTATION REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Cluster:        %s\n", clusterTitle(analysis.Cluster))
	fmt.Fprintf(sb, "Farm:           %s\n", analysis.FarmID)
	fmt.Fprintf(sb, "Analyzed At:    %s\n", formatTime(analysis.StartedAt))
	fmt.Fprintf(sb, "Farm Area:      %s acres\n", formatAcres(analysis.RegionAcres))
	fmt.Fprintf(sb, "Status:         %s\n", statusText(analysis))
	sb.WriteString("\n")
}

// writeYearlyLoss writes one line per analyzed year.
func (w *SimpleWriter) writeYearlyLoss(sb *strings.Builder, analysis *model.Analysis) {
	if len(analysis.Result) == 0 {
		return
	}

	writeSection(sb, "YEARLY FOREST LOSS")
	for _, yl := range analysis.Result {
		fmt.Fprintf(sb, "  %-8s %14s acres\n", strconv.Itoa(yl.Year), formatAcres(yl.Acres))
	}
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  %-8s %14s acres\n", "TOTAL", formatAcres(analysis.Summary.TotalAcres))
	sb.WriteString("\n")
}

// writeSummary writes the derived statistics and the risk level.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, analysis *model.Analysis) {
	if len(analysis.Result) == 0 {
		return
	}

	s := analysis.Summary
	writeSection(sb, "SUMMARY")
	fmt.Fprintf(sb, "  Mean Loss:      %s acres/year\n", formatAcres(s.MeanAcres))
	fmt.Fprintf(sb, "  Peak Year:      %s\n", peakText(s))
	fmt.Fprintf(sb, "  Trend:          %s\n", trendText(s))
	fmt.Fprintf(sb, "  Share of Farm:  %s\n", formatPercent(s.LossShare))
	fmt.Fprintf(sb, "  Risk:           %s\n", s.Risk)
	fmt.Fprintf(sb, "                  %s\n", s.Risk.Description())
	sb.WriteString("\n")
}

// writeDetails writes run metadata shown only in verbose mode.
func (w *SimpleWriter) writeDetails(sb *strings.Builder, analysis *model.Analysis) {
	writeSection(sb, "DETAILS")
	fmt.Fprintf(sb, "  Analysis ID:    %s\n", analysis.ID)
	if analysis.Dataset != "" {
		fmt.Fprintf(sb, "  Dataset:        %s\n", analysis.Dataset)
	}
	fmt.Fprintf(sb, "  Completed At:   %s\n", formatTime(analysis.CompletedAt))
	if len(analysis.Steps) > 0 {
		fmt.Fprintf(sb, "  Steps:          %s\n", strings.Join(analysis.Steps, ", "))
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by forestloss\n")
	sb.WriteString("https://github.com/nao1215/forestloss\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
