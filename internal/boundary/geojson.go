package boundary

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/nao1215/forestloss/internal/model"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	// farmPlaceholder in a GeoJSON location is replaced by the farm id.
	farmPlaceholder = "{farm}"

	defaultGeoJSONTimeout = 60 * time.Second

	// maxGeoJSONBytes bounds a downloaded boundary document.
	maxGeoJSONBytes = 64 << 20
)

// GeoJSONSource reads farm boundaries from a GeoJSON FeatureCollection.
//
// Without a farm id property, every polygon in the collection belongs to the
// farm, which suits one document per farm ("{farm}" in the location). With a
// property, only features whose property equals the farm id are used.
type GeoJSONSource struct {
	location       string
	farmIDProperty string
	client         *http.Client
	logger         *slog.Logger
}

// GeoJSONOption configures a GeoJSONSource.
type GeoJSONOption func(*GeoJSONSource)

// WithFarmIDProperty selects features by the given property.
func WithFarmIDProperty(name string) GeoJSONOption {
	return func(s *GeoJSONSource) {
		s.farmIDProperty = name
	}
}

// WithHTTPClient sets the client used for http(s) locations.
func WithHTTPClient(client *http.Client) GeoJSONOption {
	return func(s *GeoJSONSource) {
		if client != nil {
			s.client = client
		}
	}
}

// WithGeoJSONTimeout sets the download timeout.
func WithGeoJSONTimeout(timeout time.Duration) GeoJSONOption {
	return func(s *GeoJSONSource) {
		if timeout > 0 {
			s.client = &http.Client{Timeout: timeout}
		}
	}
}

// WithGeoJSONLogger sets the logger.
func WithGeoJSONLogger(logger *slog.Logger) GeoJSONOption {
	return func(s *GeoJSONSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewGeoJSONSource creates a source reading from location, an http(s) URL,
// a file:// URL or a local path.
func NewGeoJSONSource(location string, opts ...GeoJSONOption) (*GeoJSONSource, error) {
	if strings.TrimSpace(location) == "" {
		return nil, fmt.Errorf("%w: empty GeoJSON location", ErrSourceUnavailable)
	}
	s := &GeoJSONSource{
		location: location,
		client:   &http.Client{Timeout: defaultGeoJSONTimeout},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lookup returns the boundary of farmID.
func (s *GeoJSONSource) Lookup(ctx context.Context, _ string, farmID string) (*model.Region, error) {
	location := strings.ReplaceAll(s.location, farmPlaceholder, url.PathEscape(farmID))

	data, err := s.read(ctx, location)
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrSourceUnavailable, location, err)
	}

	var polys orb.MultiPolygon
	for _, f := range fc.Features {
		if !s.matches(f, farmID) {
			continue
		}
		polys = appendPolygons(polys, f.Geometry)
	}

	s.logger.Debug("boundary loaded",
		"location", location,
		"farm", farmID,
		"features", len(fc.Features),
		"polygons", len(polys),
	)
	return regionFromPolygons(farmID, polys)
}

func (s *GeoJSONSource) matches(f *geojson.Feature, farmID string) bool {
	if s.farmIDProperty == "" {
		return true
	}
	v, ok := f.Properties[s.farmIDProperty]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == farmID
}

func (s *GeoJSONSource) read(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return s.download(ctx, location)
	}
	path := location
	if err == nil && u.Scheme == "file" {
		path = u.Path
	}
	data, err := os.ReadFile(path) //nolint:gosec // Location comes from the user's configuration.
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFarmNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return data, nil
}

func (s *GeoJSONSource) download(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrFarmNotFound, location)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s returned %s", ErrSourceUnavailable, location, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxGeoJSONBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrSourceUnavailable, location, err)
	}
	return data, nil
}
