package synthetic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync/atomic"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/geo/s2"
	"github.com/nao1215/forestloss/internal/loss"
	"github.com/nao1215/forestloss/internal/model"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// earthRadiusMeters is the mean Earth radius used to scale s2 areas.
const earthRadiusMeters = 6371008.8

// ErrOutOfGrid is returned by Set when a cell index is outside the grid.
var ErrOutOfGrid = errors.New("cell outside grid")

// Cell is one pixel of the synthetic raster.
type Cell struct {
	// LossYear is the two-digit year offset of the loss event, 0 for none.
	LossYear int

	// Loss is the binary loss flag.
	Loss bool
}

// Grid is an in-memory loss raster. Row 0 is the southernmost row and
// column 0 the westernmost column. A Grid must not be modified while
// reductions are running.
type Grid struct {
	origin   orb.Point
	cellDeg  float64
	rows     int
	cols     int
	cells    []Cell
	cellArea func(row, col int) float64

	latency time.Duration
	err     error
	calls   atomic.Int64
}

// Option configures a Grid.
type Option func(*Grid)

// WithCellArea overrides the geodesic cell area with a fixed value in square
// meters. Tests use it to get round acre figures.
func WithCellArea(squareMeters float64) Option {
	return func(g *Grid) {
		g.cellArea = func(int, int) float64 { return squareMeters }
	}
}

// WithLatency delays every reduction, honoring context cancellation.
func WithLatency(d time.Duration) Option {
	return func(g *Grid) {
		g.latency = d
	}
}

// WithError makes every reduction fail with err.
func WithError(err error) Option {
	return func(g *Grid) {
		g.err = err
	}
}

// NewGrid creates a rows x cols grid of square cells cellDeg degrees wide whose
// south-west corner is origin (longitude, latitude).
func NewGrid(origin orb.Point, cellDeg float64, rows, cols int, opts ...Option) *Grid {
	g := &Grid{
		origin:  origin,
		cellDeg: cellDeg,
		rows:    rows,
		cols:    cols,
		cells:   make([]Cell, rows*cols),
	}
	g.cellArea = g.geodesicCellArea
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Set marks cell (row, col) as lost in the year with the given lossyear code.
func (g *Grid) Set(row, col, lossYear int) error {
	return g.SetCell(row, col, Cell{LossYear: lossYear, Loss: true})
}

// SetCell replaces cell (row, col).
func (g *Grid) SetCell(row, col int, c Cell) error {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return fmt.Errorf("%w: (%d, %d)", ErrOutOfGrid, row, col)
	}
	g.cells[row*g.cols+col] = c
	return nil
}

// Cell returns cell (row, col).
func (g *Grid) Cell(row, col int) Cell {
	return g.cells[row*g.cols+col]
}

// Bound returns the extent of the grid.
func (g *Grid) Bound() orb.Bound {
	return orb.Bound{
		Min: g.origin,
		Max: orb.Point{
			g.origin[0] + float64(g.cols)*g.cellDeg,
			g.origin[1] + float64(g.rows)*g.cellDeg,
		},
	}
}

// Calls returns the number of reductions served so far.
func (g *Grid) Calls() int {
	return int(g.calls.Load())
}

// CellBound returns the extent of cell (row, col).
func (g *Grid) CellBound(row, col int) orb.Bound {
	minLon := g.origin[0] + float64(col)*g.cellDeg
	minLat := g.origin[1] + float64(row)*g.cellDeg
	return orb.Bound{
		Min: orb.Point{minLon, minLat},
		Max: orb.Point{minLon + g.cellDeg, minLat + g.cellDeg},
	}
}

func (g *Grid) geodesicCellArea(row, col int) float64 {
	b := g.CellBound(row, col)
	rect := s2.RectFromLatLng(s2.LatLngFromDegrees(b.Min[1], b.Min[0]))
	rect = rect.AddPoint(s2.LatLngFromDegrees(b.Max[1], b.Max[0]))
	return rect.Area() * earthRadiusMeters * earthRadiusMeters
}

// visit calls fn for every cell whose center lies inside region.
func (g *Grid) visit(region *model.Region, fn func(row, col int, c Cell)) {
	mp := region.Geometry()
	rb := region.Bound()
	for row := 0; row < g.rows; row++ {
		for col := 0; col < g.cols; col++ {
			center := g.CellBound(row, col).Center()
			if !rb.Contains(center) || !planar.MultiPolygonContains(mp, center) {
				continue
			}
			fn(row, col, g.Cell(row, col))
		}
	}
}

// ReduceSumOverRegion sums the area of cells selected by expr inside region.
// It returns nil when no cell of the grid lies inside the region, the way
// the remote service reports no statistic for a region outside the raster.
// The scale argument is ignored: the grid is always reduced at its native
// resolution.
func (g *Grid) ReduceSumOverRegion(ctx context.Context, expr loss.Expression, region *model.Region, _ float64, maxPixels float64) (*float64, error) {
	g.calls.Add(1)

	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	if g.err != nil {
		return nil, g.err
	}
	if expr.LossYearBand != loss.LossYearBand || expr.LossBand != loss.LossBand {
		return nil, fmt.Errorf("%w: unknown band in %s/%s", loss.ErrComputationFailed, expr.LossYearBand, expr.LossBand)
	}

	var (
		pixels int
		sum    float64
	)
	g.visit(region, func(row, col int, c Cell) {
		pixels++
		if c.Loss && c.LossYear == expr.YearCode {
			sum += g.cellArea(row, col) * expr.AreaFactor
		}
	})

	if float64(pixels) > maxPixels {
		return nil, fmt.Errorf("%w: region covers %d pixels, more than maxPixels %.0f",
			loss.ErrComputationFailed, pixels, maxPixels)
	}
	if pixels == 0 {
		return nil, nil
	}
	return &sum, nil
}

// LossMap renders the cells selected by mask inside region as a PNG of the
// given size. The image covers the region's bounding box.
func (g *Grid) LossMap(ctx context.Context, mask loss.VisualizationMask, region *model.Region, width, height int) ([]byte, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	rb := region.Bound()
	dx := rb.Max[0] - rb.Min[0]
	dy := rb.Max[1] - rb.Min[1]
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("%w: empty region bound", loss.ErrInvalidRegion)
	}

	dc := gg.NewContext(width, height)
	dc.SetColor(color.Transparent)
	dc.Clear()
	dc.SetRGB(1, 0, 0)

	px := func(p orb.Point) (float64, float64) {
		return (p[0] - rb.Min[0]) / dx * float64(width),
			(rb.Max[1] - p[1]) / dy * float64(height)
	}
	g.visit(region, func(row, col int, c Cell) {
		if !mask.Includes(c.LossYear, c.Loss) {
			return
		}
		b := g.CellBound(row, col)
		x0, y0 := px(orb.Point{b.Min[0], b.Max[1]})
		x1, y1 := px(orb.Point{b.Max[0], b.Min[1]})
		dc.DrawRectangle(x0, y0, x1-x0, y1-y0)
		dc.Fill()
	})

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode loss map: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Grid) wait(ctx context.Context) error {
	if g.latency <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", loss.ErrServiceUnavailable, err)
		}
		return nil
	}
	timer := time.NewTimer(g.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", loss.ErrServiceUnavailable, ctx.Err())
	case <-timer.C:
		return nil
	}
}
