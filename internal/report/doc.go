// Package report provides report generation and output functionality.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown with tables, a mermaid chart and a risk alert
//   - PDFWriter: A printable two-page report with maps and the loss chart
//
// Design decision: We separate report writing from the analysis data
// (which lives in the model package) so new output formats can be added
// without modifying the core data structures.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
