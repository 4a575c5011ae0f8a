package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/forestloss/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Writer defines the interface for report output.
// Implementations write a farm analysis in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. The CLI writes the terminal report and the PDF file
// through the same API.
type Writer interface {
	// Write outputs the analysis to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(analysis *model.Analysis) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the analysis to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(analysis *model.Analysis) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(analysis)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// timeLayout is used for every timestamp in human-readable reports.
const timeLayout = "2006-01-02 15:04:05 MST"

// printer formats numbers with English digit grouping ("1,234.50").
// Years are formatted with strconv so they are never grouped.
var printer = message.NewPrinter(language.English)

// formatAcres formats an area with two decimals and digit grouping.
func formatAcres(acres float64) string {
	return printer.Sprintf("%.2f", acres)
}

// formatPercent formats a share (0.05) as a percentage ("5.00%").
func formatPercent(share float64) string {
	return printer.Sprintf("%.2f%%", share*100)
}

// clusterTitle capitalizes a cluster name for headings ("sul de minas" becomes "Sul De Minas").
func clusterTitle(cluster string) string {
	return cases.Title(language.English).String(cluster)
}

// formatTime formats t, or returns "-" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

// statusText returns a one-line status of the analysis.
func statusText(analysis *model.Analysis) string {
	switch {
	case analysis.ErrorMessage != "":
		return "ERROR - " + analysis.ErrorMessage
	case analysis.CompletedAt.IsZero():
		return "Incomplete"
	default:
		return "Complete"
	}
}

// peakText describes the peak year of a summary.
func peakText(s model.Summary) string {
	if s.PeakYear == 0 {
		return "-"
	}
	return strconv.Itoa(s.PeakYear) + " (" + formatAcres(s.PeakAcres) + " acres)"
}

// trendText describes the yearly trend of a summary.
func trendText(s model.Summary) string {
	return printer.Sprintf("%+.2f acres/year", s.TrendAcresPerYear)
}
