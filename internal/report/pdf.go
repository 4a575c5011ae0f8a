package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-pdf/fpdf"
	"github.com/nao1215/forestloss/internal/model"
	"github.com/nao1215/forestloss/internal/render"
)

// ErrInvalidLogo is returned when the configured logo is not a PNG or JPEG image.
var ErrInvalidLogo = errors.New("invalid logo image")

// Page geometry in millimeters (US Letter, portrait).
const (
	pdfMargin      = 15.0
	pdfFooterSpace = 20.0
	pdfHeaderTop   = 8.0
	pdfLogoHeight  = 12.0
	pdfBodyTop     = 28.0
	pdfColumnGap   = 6.0
	pdfLineHeight  = 6.0
	pdfTableYearW  = 40.0
	pdfTableAcresW = 50.0
)

// Logo is downscaled to these pixel bounds before embedding.
const (
	logoMaxWidth  = 600
	logoMaxHeight = 180
)

// PDFWriter outputs a printable farm report.
//
// Page 1 shows the farm boundary map. Page 2 places the deforestation map
// and the deforestation history chart side by side above a per-year table.
// Every page carries a header with the optional logo and the farm name,
// and a footer with the page number and the company name.
type PDFWriter struct {
	baseWriter

	// logo is an optional PNG or JPEG shown in the page header.
	logo []byte

	// company is printed in the page footer.
	company string

	// compress toggles stream compression. Tests disable it to inspect text.
	compress bool
}

// PDFWriterOption configures a PDFWriter.
type PDFWriterOption func(*PDFWriter)

// WithLogo sets the header logo image (PNG or JPEG bytes).
func WithLogo(logo []byte) PDFWriterOption {
	return func(w *PDFWriter) {
		w.logo = logo
	}
}

// WithCompany sets the company name printed in the footer.
func WithCompany(company string) PDFWriterOption {
	return func(w *PDFWriter) {
		w.company = company
	}
}

// NewPDFWriter creates a PDFWriter that outputs to the given writer.
func NewPDFWriter(output io.Writer, opts ...PDFWriterOption) *PDFWriter {
	w := &PDFWriter{
		baseWriter: newBaseWriter(output),
		compress:   true,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write renders the analysis as a two-page PDF document.
func (w *PDFWriter) Write(analysis *model.Analysis) (int, error) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetCompression(w.compress)
	pdf.SetMargins(pdfMargin, pdfBodyTop, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfFooterSpace)
	pdf.SetCreator("forestloss", false)
	if !analysis.StartedAt.IsZero() {
		pdf.SetCreationDate(analysis.StartedAt)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	logo, err := w.registerLogo(pdf)
	if err != nil {
		return 0, err
	}

	title := "Deforestation report of " + analysis.FarmID
	pdf.SetTitle(title, true)
	pdf.SetHeaderFunc(func() {
		x := pdfMargin
		if logo != nil {
			logoW := pdfLogoHeight * logo.Width() / logo.Height()
			pdf.ImageOptions("logo", pdfMargin, pdfHeaderTop, logoW, pdfLogoHeight, false,
				fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
			x += logoW + 4
		}
		pdf.SetFont("Helvetica", "B", 15)
		pdf.SetXY(x, pdfHeaderTop+2)
		pdf.CellFormat(0, 8, tr(title), "", 1, "L", false, 0, "")
		pdf.SetLineWidth(0.3)
		pdf.Line(pdfMargin, pdfHeaderTop+pdfLogoHeight+3, pageWidth(pdf)-pdfMargin, pdfHeaderTop+pdfLogoHeight+3)
		pdf.SetY(pdfBodyTop)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, "page no. "+strconv.Itoa(pdf.PageNo()), "", 0, "L", false, 0, "")
		if w.company != "" {
			pdf.SetX(pdfMargin)
			pdf.CellFormat(0, 10, tr(w.company), "", 0, "R", false, 0, "")
		}
	})

	w.boundaryPage(pdf, tr, analysis)
	w.lossPage(pdf, tr, analysis)

	if err := pdf.Error(); err != nil {
		return 0, fmt.Errorf("failed to render PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return 0, fmt.Errorf("failed to render PDF: %w", err)
	}
	return w.output.Write(buf.Bytes())
}

// registerLogo normalizes the logo to a bounded PNG and registers it.
// It returns nil when no logo is configured.
func (w *PDFWriter) registerLogo(pdf *fpdf.Fpdf) (*fpdf.ImageInfoType, error) {
	if len(w.logo) == 0 {
		return nil, nil
	}
	data, err := render.FitPNG(w.logo, logoMaxWidth, logoMaxHeight)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLogo, err)
	}
	info := registerPNG(pdf, "logo", data)
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLogo, err)
	}
	return info, nil
}

// boundaryPage writes page 1: farm facts and the boundary map.
func (w *PDFWriter) boundaryPage(pdf *fpdf.Fpdf, tr func(string) string, analysis *model.Analysis) {
	pdf.AddPage()

	pdf.SetFont("Helvetica", "", 11)
	facts := [][2]string{
		{"Cluster", clusterTitle(analysis.Cluster)},
		{"Farm", analysis.FarmID},
		{"Farm area", formatAcres(analysis.RegionAcres) + " acres"},
		{"Analyzed at", formatTime(analysis.StartedAt)},
		{"Status", statusText(analysis)},
	}
	for _, f := range facts {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(35, pdfLineHeight, f[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, pdfLineHeight, tr(f[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, "Farm boundary", "", 1, "L", false, 0, "")
	w.image(pdf, "boundary", analysis.Images.BoundaryMap, pdfMargin, pdf.GetY(), contentWidth(pdf))
}

// lossPage writes page 2: loss map and history chart side by side, then the table.
func (w *PDFWriter) lossPage(pdf *fpdf.Fpdf, tr func(string) string, analysis *model.Analysis) {
	pdf.AddPage()

	colW := (contentWidth(pdf) - pdfColumnGap) / 2
	leftX := pdfMargin
	rightX := pdfMargin + colW + pdfColumnGap
	top := pdf.GetY()

	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetXY(leftX, top)
	pdf.CellFormat(colW, 8, "Deforestation map", "", 0, "L", false, 0, "")
	pdf.SetXY(rightX, top)
	pdf.CellFormat(colW, 8, "Deforestation history", "", 1, "L", false, 0, "")

	imgTop := top + 10
	leftBottom := w.image(pdf, "lossmap", analysis.Images.LossMap, leftX, imgTop, colW)
	rightBottom := w.image(pdf, "chart", analysis.Images.Chart, rightX, imgTop, colW)

	pdf.SetXY(pdfMargin, max(leftBottom, rightBottom)+8)
	w.lossTable(pdf, tr, analysis)
}

// lossTable writes the per-year table and the risk line.
func (w *PDFWriter) lossTable(pdf *fpdf.Fpdf, tr func(string) string, analysis *model.Analysis) {
	if len(analysis.Result) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, pdfLineHeight, "No years were analyzed.", "", 1, "L", false, 0, "")
		return
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(pdfTableYearW, 7, "Year", "1", 0, "C", true, 0, "")
	pdf.CellFormat(pdfTableAcresW, 7, "Loss (acres)", "1", 1, "C", true, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	for _, yl := range analysis.Result {
		pdf.CellFormat(pdfTableYearW, 7, strconv.Itoa(yl.Year), "1", 0, "C", false, 0, "")
		pdf.CellFormat(pdfTableAcresW, 7, formatAcres(yl.Acres), "1", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(pdfTableYearW, 7, "Total", "1", 0, "C", false, 0, "")
	pdf.CellFormat(pdfTableAcresW, 7, formatAcres(analysis.Summary.TotalAcres), "1", 1, "R", false, 0, "")
	pdf.Ln(4)

	s := analysis.Summary
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, pdfLineHeight, "Share of farm: "+formatPercent(s.LossShare), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, pdfLineHeight, "Risk: "+s.Risk.String(), "", 1, "L", false, 0, "")
	pdf.MultiCell(0, pdfLineHeight, tr(s.Risk.Description()), "", "L", false)
}

// image places a PNG at (x, y) scaled to width and returns its bottom edge.
// A missing image is replaced by a placeholder line.
func (w *PDFWriter) image(pdf *fpdf.Fpdf, name string, data []byte, x, y, width float64) float64 {
	if len(data) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.SetXY(x, y)
		pdf.CellFormat(width, pdfLineHeight, "Not available", "", 0, "L", false, 0, "")
		return y + pdfLineHeight
	}

	info := registerPNG(pdf, name, data)
	if info == nil || info.Width() == 0 {
		return y
	}
	height := width * info.Height() / info.Width()
	if room := pageHeight(pdf) - pdfFooterSpace - y; height > room && room > 0 {
		width *= room / height
		height = room
	}
	pdf.ImageOptions(name, x, y, width, height, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	return y + height
}

func registerPNG(pdf *fpdf.Fpdf, name string, data []byte) *fpdf.ImageInfoType {
	return pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(data))
}

func pageWidth(pdf *fpdf.Fpdf) float64 {
	w, _ := pdf.GetPageSize()
	return w
}

func pageHeight(pdf *fpdf.Fpdf) float64 {
	_, h := pdf.GetPageSize()
	return h
}

func contentWidth(pdf *fpdf.Fpdf) float64 {
	left, _, right, _ := pdf.GetMargins()
	return pageWidth(pdf) - left - right
}
