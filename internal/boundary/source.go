package boundary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/nao1215/forestloss/internal/config"
	"github.com/nao1215/forestloss/internal/model"
	"github.com/paulmach/orb"
)

var (
	// ErrUnknownCluster is returned when no source is configured for a cluster.
	ErrUnknownCluster = errors.New("unknown cluster")

	// ErrFarmNotFound is returned when the source has no boundary for a farm.
	ErrFarmNotFound = errors.New("farm boundary not found")

	// ErrSourceUnavailable is returned when the source cannot be read.
	ErrSourceUnavailable = errors.New("boundary source unavailable")

	// ErrUnknownSourceKind is returned for an unsupported source kind.
	ErrUnknownSourceKind = errors.New("unknown boundary source kind")
)

// Source returns the boundary of a farm.
type Source interface {
	Lookup(ctx context.Context, cluster, farmID string) (*model.Region, error)
}

// NewSource builds the source described by cfg.
func NewSource(cfg config.ClusterConfig, logger *slog.Logger) (Source, error) {
	switch cfg.Kind() {
	case config.SourceGeoJSON:
		src, err := NewGeoJSONSource(cfg.URL,
			WithFarmIDProperty(cfg.FarmIDProperty),
			WithGeoJSONTimeout(cfg.Timeout),
			WithGeoJSONLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceOverpass:
		return NewOverpassSource(cfg.Endpoint,
			WithOverpassTimeout(cfg.Timeout),
			WithOverpassLogger(logger),
		), nil
	case config.SourcePostGIS:
		src, err := OpenPostGISSource(cfg.DSN, PostGISTable{
			Table:         cfg.Table,
			GeomColumn:    cfg.GeomColumn,
			ClusterColumn: cfg.ClusterColumn,
			FarmColumn:    cfg.FarmColumn,
			GeoJSON:       cfg.GeoJSONColumn,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSourceKind, cfg.Source)
	}
}

// Registry maps cluster names to sources.
// Cluster names are matched case-insensitively.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
	names   map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
		names:   make(map[string]string),
	}
}

// NewRegistryFromFile builds a registry with one source per configured cluster.
// Sources that hold connections are closed if a later cluster fails to build.
func NewRegistryFromFile(file *config.File, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry()
	for _, name := range file.ClusterNames() {
		cfg, _ := file.Cluster(name)
		src, err := NewSource(cfg, logger)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("cluster %s: %w", name, err)
		}
		r.Register(name, src)
	}
	return r, nil
}

// Register adds or replaces the source of a cluster.
func (r *Registry) Register(cluster string, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(cluster)
	r.sources[key] = src
	r.names[key] = cluster
}

// Clusters returns the registered cluster names in sorted order.
func (r *Registry) Clusters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.names))
	for _, n := range r.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the boundary of farmID in cluster.
func (r *Registry) Lookup(ctx context.Context, cluster, farmID string) (*model.Region, error) {
	r.mu.RLock()
	src, ok := r.sources[strings.ToLower(cluster)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCluster, cluster)
	}
	return src.Lookup(ctx, cluster, farmID)
}

// Close releases sources that hold resources.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, src := range r.sources {
		if c, ok := src.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// regionFromPolygons merges polygons into one validated Region.
func regionFromPolygons(farmID string, polys orb.MultiPolygon) (*model.Region, error) {
	if len(polys) == 0 {
		return nil, fmt.Errorf("%w: %s has no polygon geometry", ErrFarmNotFound, farmID)
	}
	region, err := model.NewRegion(polys)
	if err != nil {
		return nil, fmt.Errorf("farm %s: %w", farmID, err)
	}
	return region, nil
}

// appendPolygons adds the polygonal parts of g to mp and ignores the rest.
func appendPolygons(mp orb.MultiPolygon, g orb.Geometry) orb.MultiPolygon {
	switch v := g.(type) {
	case orb.Polygon:
		return append(mp, v)
	case orb.MultiPolygon:
		return append(mp, v...)
	case orb.Collection:
		for _, item := range v {
			mp = appendPolygons(mp, item)
		}
	}
	return mp
}
