package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// AcresPerSquareMeter converts square meters to acres.
// The value matches the conversion factor used by the loss aggregation so
// region area and loss area are expressed on the same scale.
const AcresPerSquareMeter = 0.000247

// Region validation errors.
var (
	// ErrEmptyRegion is returned when a region has no polygons or no rings.
	ErrEmptyRegion = errors.New("region has no geometry")

	// ErrDegenerateRegion is returned when a region's rings cannot enclose
	// any area (fewer than four positions, or zero geodesic area).
	ErrDegenerateRegion = errors.New("region has zero area")

	// ErrUnsupportedGeometry is returned when a geometry is neither a polygon
	// nor a multipolygon (or a collection of them).
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")
)

// Region is a farm boundary. Coordinates are WGS84 longitude/latitude.
// A Region is immutable once constructed: accessors return copies.
type Region struct {
	geometry orb.MultiPolygon
}

// NewRegion builds a Region from a polygon, multipolygon, or a collection of
// those. The region is validated before it is returned.
func NewRegion(g orb.Geometry) (*Region, error) {
	mp, err := toMultiPolygon(g)
	if err != nil {
		return nil, err
	}
	r := &Region{geometry: mp.Clone()}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// toMultiPolygon flattens supported geometries into a single MultiPolygon.
func toMultiPolygon(g orb.Geometry) (orb.MultiPolygon, error) {
	switch v := g.(type) {
	case nil:
		return nil, ErrEmptyRegion
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	case orb.MultiPolygon:
		return v, nil
	case orb.Collection:
		var mp orb.MultiPolygon
		for _, item := range v {
			part, err := toMultiPolygon(item)
			if err != nil {
				return nil, err
			}
			mp = append(mp, part...)
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.GeoJSONType())
	}
}

// Validate reports whether the region can be used for aggregation.
// A zero-value Region is invalid.
func (r *Region) Validate() error {
	if r == nil || len(r.geometry) == 0 {
		return ErrEmptyRegion
	}
	for _, poly := range r.geometry {
		if len(poly) == 0 {
			return ErrEmptyRegion
		}
		for _, ring := range poly {
			if len(ring) < 4 {
				return fmt.Errorf("%w: ring has %d positions", ErrDegenerateRegion, len(ring))
			}
		}
	}
	if r.SquareMeters() <= 0 {
		return ErrDegenerateRegion
	}
	return nil
}

// Geometry returns a copy of the region's multipolygon.
func (r *Region) Geometry() orb.MultiPolygon {
	if r == nil {
		return nil
	}
	return r.geometry.Clone()
}

// Bound returns the bounding box of the region.
func (r *Region) Bound() orb.Bound {
	if r == nil {
		return orb.Bound{}
	}
	return r.geometry.Bound()
}

// SquareMeters returns the geodesic area of the region in square meters.
// Holes are subtracted from their outer ring.
func (r *Region) SquareMeters() float64 {
	if r == nil {
		return 0
	}
	var total float64
	for _, poly := range r.geometry {
		if len(poly) == 0 {
			continue
		}
		area := math.Abs(geo.Area(poly[0]))
		for _, hole := range poly[1:] {
			area -= math.Abs(geo.Area(hole))
		}
		if area > 0 {
			total += area
		}
	}
	if math.IsNaN(total) {
		return 0
	}
	return total
}

// Acres returns the geodesic area of the region in acres.
func (r *Region) Acres() float64 {
	return r.SquareMeters() * AcresPerSquareMeter
}

// MarshalJSON encodes the region as its multipolygon coordinates.
func (r Region) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.geometry)
}

// UnmarshalJSON decodes multipolygon coordinates into the region.
// Validation is not applied so that stored history can always be loaded.
func (r *Region) UnmarshalJSON(data []byte) error {
	var mp orb.MultiPolygon
	if err := json.Unmarshal(data, &mp); err != nil {
		return err
	}
	r.geometry = mp
	return nil
}
