package render

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/fogleman/gg"
	"github.com/nao1215/forestloss/internal/model"
)

// Chart layout in pixels.
const (
	chartMarginLeft   = 56
	chartMarginRight  = 16
	chartMarginTop    = 40
	chartMarginBottom = 36
	chartTicks        = 4
)

// LossChart draws a bar chart with one bar per year, in result order.
// Each bar is labeled with its year and acre value.
func LossChart(result model.YearlyLossResult, width, height int) ([]byte, error) {
	if err := checkSize(width, height); err != nil {
		return nil, err
	}
	titleFace, err := fontFace(14)
	if err != nil {
		return nil, err
	}
	labelFace, err := fontFace(10)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetFontFace(titleFace)
	dc.SetRGB(0.1, 0.1, 0.1)
	dc.DrawStringAnchored("Deforestation by year (acres)", float64(width)/2, chartMarginTop/2, 0.5, 0.5)

	left := float64(chartMarginLeft)
	right := float64(width - chartMarginRight)
	top := float64(chartMarginTop)
	bottom := float64(height - chartMarginBottom)
	plotH := bottom - top

	maxAcres := 0.0
	for _, yl := range result {
		maxAcres = max(maxAcres, yl.Acres)
	}
	if maxAcres == 0 {
		maxAcres = 1
	}

	// Axes and gridlines.
	dc.SetFontFace(labelFace)
	dc.SetLineWidth(1)
	for i := 0; i <= chartTicks; i++ {
		v := maxAcres * float64(i) / chartTicks
		y := bottom - plotH*float64(i)/chartTicks
		dc.SetRGB(0.85, 0.85, 0.85)
		dc.DrawLine(left, y, right, y)
		dc.Stroke()
		dc.SetRGB(0.3, 0.3, 0.3)
		dc.DrawStringAnchored(formatAcres(v), left-6, y, 1, 0.5)
	}
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.DrawLine(left, top, left, bottom)
	dc.DrawLine(left, bottom, right, bottom)
	dc.Stroke()

	if len(result) == 0 {
		dc.DrawStringAnchored("no years analyzed", (left+right)/2, (top+bottom)/2, 0.5, 0.5)
		return encode(dc)
	}

	slot := (right - left) / float64(len(result))
	barW := slot * 0.6
	for i, yl := range result {
		x := left + slot*float64(i) + (slot-barW)/2
		h := plotH * yl.Acres / maxAcres
		dc.SetRGB(0.80, 0.15, 0.15)
		dc.DrawRectangle(x, bottom-h, barW, h)
		dc.Fill()

		dc.SetRGB(0.1, 0.1, 0.1)
		dc.DrawStringAnchored(strconv.Itoa(yl.Year), x+barW/2, bottom+14, 0.5, 0.5)
		dc.DrawStringAnchored(formatAcres(yl.Acres), x+barW/2, bottom-h-8, 0.5, 0.5)
	}

	return encode(dc)
}

func formatAcres(v float64) string {
	switch {
	case v == 0:
		return "0"
	case v < 10:
		return strconv.FormatFloat(v, 'f', 2, 64)
	default:
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
}

func encode(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}
