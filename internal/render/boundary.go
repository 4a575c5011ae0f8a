package render

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/nao1215/forestloss/internal/model"
	"github.com/paulmach/orb"
)

// mapPadding is the fraction of the image left blank around the boundary.
const mapPadding = 0.05

// projection maps lon/lat to pixels with an equirectangular projection
// centered on the region, which keeps farm-sized shapes undistorted.
type projection struct {
	bound  orb.Bound
	scale  float64
	offX   float64
	offY   float64
	cosLat float64
}

func newProjection(b orb.Bound, width, height int) projection {
	cosLat := math.Cos(b.Center()[1] * math.Pi / 180)
	w := (b.Max[0] - b.Min[0]) * cosLat
	h := b.Max[1] - b.Min[1]

	usableW := float64(width) * (1 - 2*mapPadding)
	usableH := float64(height) * (1 - 2*mapPadding)
	scale := math.Min(usableW/w, usableH/h)

	return projection{
		bound:  b,
		scale:  scale,
		offX:   (float64(width) - w*scale) / 2,
		offY:   (float64(height) - h*scale) / 2,
		cosLat: cosLat,
	}
}

func (p projection) point(pt orb.Point) (float64, float64) {
	x := (pt[0]-p.bound.Min[0])*p.cosLat*p.scale + p.offX
	y := (p.bound.Max[1]-pt[1])*p.scale + p.offY
	return x, y
}

// BoundaryMap draws the outline of region in red on a transparent image.
func BoundaryMap(region *model.Region, width, height int) ([]byte, error) {
	if err := checkSize(width, height); err != nil {
		return nil, err
	}
	if err := region.Validate(); err != nil {
		return nil, fmt.Errorf("boundary map: %w", err)
	}

	proj := newProjection(region.Bound(), width, height)

	dc := gg.NewContext(width, height)
	dc.SetColor(color.Transparent)
	dc.Clear()
	dc.SetRGB(1, 0, 0)
	dc.SetLineWidth(2)
	dc.SetLineJoin(gg.LineJoinRound)

	for _, poly := range region.Geometry() {
		for _, ring := range poly {
			for i, pt := range ring {
				x, y := proj.point(pt)
				if i == 0 {
					dc.MoveTo(x, y)
				} else {
					dc.LineTo(x, y)
				}
			}
			dc.ClosePath()
		}
	}
	dc.Stroke()

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode boundary map: %w", err)
	}
	return buf.Bytes(), nil
}
