package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/forestloss/internal/model"
)

// JSONWriter outputs analyses in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// version is written alongside the analysis when set.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion wraps every analysis in a JSONReport carrying version.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the analysis in JSON format.
func (w *JSONWriter) Write(analysis *model.Analysis) (int, error) {
	if w.version != "" {
		return w.writeJSON(NewJSONReport(analysis, w.version))
	}
	return w.writeJSON(analysis)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// JSONReport wraps an analysis with metadata about the tool that produced it.
//
// Design decision: We wrap the analysis rather than adding fields to
// model.Analysis so that output-specific fields stay out of the stored
// history records.
type JSONReport struct {
	// Version is the forestloss version that generated this report.
	Version string `json:"version"`

	// Analysis is the full farm analysis.
	Analysis *model.Analysis `json:"analysis"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(analysis *model.Analysis, version string) *JSONReport {
	return &JSONReport{
		Version:  version,
		Analysis: analysis,
	}
}
