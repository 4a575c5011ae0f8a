package boundary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/nao1215/forestloss/internal/model"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrInvalidIdentifier is returned when a configured table or column name is
// not a plain SQL identifier.
var ErrInvalidIdentifier = errors.New("invalid SQL identifier")

// identifierPattern accepts optionally schema-qualified identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostGISTable describes the table holding farm boundaries.
type PostGISTable struct {
	// Table name, optionally schema-qualified. Default "farms".
	Table string

	// GeomColumn holds the boundary. Default "geom".
	GeomColumn string

	// ClusterColumn and FarmColumn identify a farm. Defaults "cluster" and "farm_id".
	ClusterColumn string
	FarmColumn    string

	// GeoJSON indicates that GeomColumn already stores GeoJSON text, so
	// ST_AsGeoJSON is not applied.
	GeoJSON bool
}

func (t PostGISTable) withDefaults() PostGISTable {
	if t.Table == "" {
		t.Table = "farms"
	}
	if t.GeomColumn == "" {
		t.GeomColumn = "geom"
	}
	if t.ClusterColumn == "" {
		t.ClusterColumn = "cluster"
	}
	if t.FarmColumn == "" {
		t.FarmColumn = "farm_id"
	}
	return t
}

// query builds the lookup statement with "?" placeholders. Identifiers are
// validated because they cannot be passed as parameters.
func (t PostGISTable) query() (string, error) {
	for _, id := range []string{t.Table, t.GeomColumn, t.ClusterColumn, t.FarmColumn} {
		if !identifierPattern.MatchString(id) {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
		}
	}
	geom := fmt.Sprintf("ST_AsGeoJSON(%s)", t.GeomColumn)
	if t.GeoJSON {
		geom = t.GeomColumn
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND %s = ?",
		geom, t.Table, t.ClusterColumn, t.FarmColumn), nil
}

// PostGISSource reads farm boundaries from a PostgreSQL/PostGIS table.
type PostGISSource struct {
	db    *sqlx.DB
	query string
}

// OpenPostGISSource connects lazily to dsn. No connection is made until the
// first lookup.
func OpenPostGISSource(dsn string, table PostGISTable) (*PostGISSource, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty PostgreSQL DSN", ErrSourceUnavailable)
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	src, err := NewPostGISSource(db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return src, nil
}

// NewPostGISSource uses an existing connection pool. Placeholders are
// rebound for the pool's driver.
func NewPostGISSource(db *sqlx.DB, table PostGISTable) (*PostGISSource, error) {
	q, err := table.withDefaults().query()
	if err != nil {
		return nil, err
	}
	return &PostGISSource{db: db, query: db.Rebind(q)}, nil
}

// Lookup returns the boundary of farmID in cluster.
func (s *PostGISSource) Lookup(ctx context.Context, cluster, farmID string) (*model.Region, error) {
	var rows []string
	if err := s.db.SelectContext(ctx, &rows, s.query, cluster, farmID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrFarmNotFound, cluster, farmID)
	}

	var polys orb.MultiPolygon
	for _, raw := range rows {
		g, err := geojson.UnmarshalGeometry([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: decode geometry of %s: %w", ErrSourceUnavailable, farmID, err)
		}
		polys = appendPolygons(polys, g.Geometry())
	}
	return regionFromPolygons(farmID, polys)
}

// Close closes the connection pool.
func (s *PostGISSource) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
