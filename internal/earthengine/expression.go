package earthengine

import (
	"strconv"

	"github.com/nao1215/forestloss/internal/loss"
	"github.com/nao1215/forestloss/internal/model"
)

// graph accumulates the values of an Earth Engine expression. Every node
// added through add is stored once and referenced by key, so shared
// subexpressions such as the loaded image are serialized once.
type graph struct {
	values map[string]valueNode
}

func newGraph() *graph {
	return &graph{values: make(map[string]valueNode)}
}

// add stores node and returns a reference to it.
func (g *graph) add(node valueNode) valueNode {
	key := strconv.Itoa(len(g.values))
	g.values[key] = node
	return valueNode{ValueReference: key}
}

// call adds an invocation of the named catalog function.
func (g *graph) call(name string, args map[string]valueNode) valueNode {
	return g.add(valueNode{
		FunctionInvocationValue: &functionInvocation{
			FunctionName: name,
			Arguments:    args,
		},
	})
}

// expression returns the graph evaluated at result.
func (g *graph) expression(result valueNode) *expression {
	return &expression{
		Result: result.ValueReference,
		Values: g.values,
	}
}

func constant(v any) valueNode {
	return valueNode{ConstantValue: v}
}

// geometry adds the region as a MultiPolygon geometry.
func (g *graph) geometry(region *model.Region) valueNode {
	mp := region.Geometry()
	coords := make([][][][]float64, len(mp))
	for i, poly := range mp {
		coords[i] = make([][][]float64, len(poly))
		for j, ring := range poly {
			coords[i][j] = make([][]float64, len(ring))
			for k, p := range ring {
				coords[i][j][k] = []float64{p[0], p[1]}
			}
		}
	}
	return g.call("GeometryConstructors.MultiPolygon", map[string]valueNode{
		"coordinates": constant(coords),
	})
}

func (g *graph) band(image valueNode, name string) valueNode {
	return g.call("Image.select", map[string]valueNode{
		"input":         image,
		"bandSelectors": constant([]string{name}),
	})
}

func (g *graph) imageConstant(v any) valueNode {
	return g.call("Image.constant", map[string]valueNode{"value": constant(v)})
}

func (g *graph) binary(name string, a, b valueNode) valueNode {
	return g.call(name, map[string]valueNode{"image1": a, "image2": b})
}

// reduceExpression builds the zonal sum of expr over region:
//
//	mask    = (lossyear == code) AND loss
//	area    = pixelArea * factor
//	result  = reduceRegion(mask * area, sum, region, scale, maxPixels)
//
// The result is a dictionary keyed by the first band of the product, which
// is expr.LossYearBand.
func reduceExpression(expr loss.Expression, region *model.Region, scale, maxPixels float64) *expression {
	g := newGraph()

	image := g.call("Image.load", map[string]valueNode{"id": constant(expr.Dataset)})
	lossYear := g.band(image, expr.LossYearBand)
	lossFlag := g.band(image, expr.LossBand)

	yearMask := g.binary("Image.eq", lossYear, g.imageConstant(expr.YearCode))
	mask := g.binary("Image.and", yearMask, lossFlag)

	pixelArea := g.call("Image.pixelArea", map[string]valueNode{})
	area := g.binary("Image.multiply", pixelArea, g.imageConstant(expr.AreaFactor))
	contribution := g.binary("Image.multiply", mask, area)

	reducer := g.call("Reducer.sum", map[string]valueNode{})
	result := g.call("Image.reduceRegion", map[string]valueNode{
		"image":     contribution,
		"reducer":   reducer,
		"geometry":  g.geometry(region),
		"scale":     constant(scale),
		"maxPixels": constant(maxPixels),
	})
	return g.expression(result)
}

// lossMapExpression builds the visualization of mask clipped to region and
// scaled to width x height pixels: loss pixels in red, everything else
// transparent.
func lossMapExpression(mask loss.VisualizationMask, region *model.Region, width, height int) *expression {
	g := newGraph()

	image := g.call("Image.load", map[string]valueNode{"id": constant(mask.Dataset)})
	lossYear := g.band(image, mask.LossYearBand)
	lossFlag := g.band(image, mask.LossBand)

	inRange := g.binary("Image.and",
		g.binary("Image.gte", lossYear, g.imageConstant(mask.FromCode)),
		g.binary("Image.lte", lossYear, g.imageConstant(mask.ToCode)),
	)
	masked := g.call("Image.updateMask", map[string]valueNode{
		"image": lossFlag,
		"mask":  inRange,
	})
	// Pixels without loss have value 0 and stay visible after updateMask.
	masked = g.call("Image.selfMask", map[string]valueNode{"image": masked})

	geom := g.geometry(region)
	clipped := g.call("Image.clip", map[string]valueNode{
		"input":    masked,
		"geometry": geom,
	})
	visualized := g.call("Image.visualize", map[string]valueNode{
		"image":   clipped,
		"min":     constant(0),
		"max":     constant(1),
		"palette": constant([]string{"FF0000"}),
	})
	scaled := g.call("Image.clipToBoundsAndScale", map[string]valueNode{
		"input":    visualized,
		"geometry": geom,
		"width":    constant(width),
		"height":   constant(height),
	})
	return g.expression(scaled)
}
