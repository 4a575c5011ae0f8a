package boundary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/forestloss/internal/model"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/serjvanilla/go-overpass"
)

const (
	// DefaultOverpassEndpoint is the public Overpass API instance.
	DefaultOverpassEndpoint = "https://overpass-api.de/api/interpreter"

	defaultOverpassTimeout = 60 * time.Second
)

// ErrInvalidFarmID is returned when a farm id is not an OSM element reference.
var ErrInvalidFarmID = errors.New("invalid OSM farm id")

// OverpassSource reads farm boundaries from OpenStreetMap. A farm id names a
// closed way ("way/123" or "123") or a multipolygon relation ("relation/45").
type OverpassSource struct {
	endpoint string
	timeout  time.Duration
	logger   *slog.Logger
}

// OverpassOption configures an OverpassSource.
type OverpassOption func(*OverpassSource)

// WithOverpassTimeout sets the request timeout.
func WithOverpassTimeout(timeout time.Duration) OverpassOption {
	return func(s *OverpassSource) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithOverpassLogger sets the logger.
func WithOverpassLogger(logger *slog.Logger) OverpassOption {
	return func(s *OverpassSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewOverpassSource creates a source querying endpoint. An empty endpoint
// selects DefaultOverpassEndpoint.
func NewOverpassSource(endpoint string, opts ...OverpassOption) *OverpassSource {
	if endpoint == "" {
		endpoint = DefaultOverpassEndpoint
	}
	s := &OverpassSource{
		endpoint: endpoint,
		timeout:  defaultOverpassTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// osmRef identifies an OSM element.
type osmRef struct {
	kind string
	id   int64
}

func parseOSMRef(farmID string) (osmRef, error) {
	kind, id, found := strings.Cut(strings.TrimSpace(farmID), "/")
	if !found {
		kind, id = "way", kind
	}
	kind = strings.ToLower(kind)
	if kind != "way" && kind != "relation" {
		return osmRef{}, fmt.Errorf("%w: %q", ErrInvalidFarmID, farmID)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return osmRef{}, fmt.Errorf("%w: %q", ErrInvalidFarmID, farmID)
	}
	return osmRef{kind: kind, id: n}, nil
}

// query returns the Overpass QL fetching the element with its ways and nodes.
func (r osmRef) query(timeout time.Duration) string {
	seconds := max(int(timeout.Seconds()), 1)
	return fmt.Sprintf("[out:json][timeout:%d];%s(%d);out body;>;out skel qt;",
		seconds, r.kind, r.id)
}

// Lookup returns the boundary of farmID.
func (s *OverpassSource) Lookup(ctx context.Context, _ string, farmID string) (*model.Region, error) {
	ref, err := parseOSMRef(farmID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	// The overpass client has no context support; bound it by the deadline.
	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	client := overpass.NewWithSettings(s.endpoint, 1, &http.Client{Timeout: timeout})

	result, err := client.Query(ref.query(timeout))
	if err != nil {
		return nil, fmt.Errorf("%w: overpass query failed: %w", ErrSourceUnavailable, err)
	}

	var polys orb.MultiPolygon
	switch ref.kind {
	case "way":
		way, ok := result.Ways[ref.id]
		if !ok {
			return nil, fmt.Errorf("%w: way %d", ErrFarmNotFound, ref.id)
		}
		ring := wayRing(way)
		if !ring.Closed() {
			return nil, fmt.Errorf("%w: way %d is not closed", ErrFarmNotFound, ref.id)
		}
		polys = orb.MultiPolygon{{ring}}
	case "relation":
		rel, ok := result.Relations[ref.id]
		if !ok {
			return nil, fmt.Errorf("%w: relation %d", ErrFarmNotFound, ref.id)
		}
		polys = relationPolygons(rel)
	}

	s.logger.Debug("boundary loaded from OpenStreetMap",
		"farm", farmID,
		"polygons", len(polys),
	)
	return regionFromPolygons(farmID, polys)
}

func wayRing(way *overpass.Way) orb.Ring {
	ring := make(orb.Ring, 0, len(way.Nodes))
	for _, n := range way.Nodes {
		if n == nil {
			continue
		}
		ring = append(ring, orb.Point{n.Lon, n.Lat})
	}
	return ring
}

// relationPolygons assembles outer and inner member ways into polygons.
// Holes are attached to the outer ring that contains them.
func relationPolygons(rel *overpass.Relation) orb.MultiPolygon {
	var outer, inner []orb.LineString
	for _, m := range rel.Members {
		if m.Way == nil {
			continue
		}
		line := orb.LineString(wayRing(m.Way))
		if len(line) < 2 {
			continue
		}
		if m.Role == "inner" {
			inner = append(inner, line)
		} else {
			outer = append(outer, line)
		}
	}

	var polys orb.MultiPolygon
	for _, ring := range stitchRings(outer) {
		polys = append(polys, orb.Polygon{ring})
	}
	for _, hole := range stitchRings(inner) {
		for i := range polys {
			if planar.RingContains(polys[i][0], hole[0]) {
				polys[i] = append(polys[i], hole)
				break
			}
		}
	}
	return polys
}

// stitchRings joins way segments sharing end points into closed rings.
// Segments that cannot be closed are dropped.
func stitchRings(lines []orb.LineString) []orb.Ring {
	remaining := append([]orb.LineString(nil), lines...)
	var rings []orb.Ring

	for len(remaining) > 0 {
		current := append(orb.LineString(nil), remaining[0]...)
		remaining = remaining[1:]

		for !closed(current) {
			last := current[len(current)-1]
			joined := false
			for i, next := range remaining {
				switch {
				case next[0].Equal(last):
					current = append(current, next[1:]...)
				case next[len(next)-1].Equal(last):
					rev := next.Clone()
					rev.Reverse()
					current = append(current, rev[1:]...)
				default:
					continue
				}
				remaining = append(remaining[:i], remaining[i+1:]...)
				joined = true
				break
			}
			if !joined {
				break
			}
		}

		if closed(current) && len(current) >= 4 {
			rings = append(rings, orb.Ring(current))
		}
	}
	return rings
}

func closed(ls orb.LineString) bool {
	return len(ls) > 1 && ls[0].Equal(ls[len(ls)-1])
}
