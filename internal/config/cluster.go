package config

import (
	"sort"
	"strings"
	"time"
)

// Boundary source kinds.
const (
	SourceGeoJSON  = "geojson"
	SourceOverpass = "overpass"
	SourcePostGIS  = "postgis"
)

// ClusterConfig describes where the farm boundaries of one cluster come from.
type ClusterConfig struct {
	// Source is one of "geojson", "overpass" or "postgis".
	// Empty means "geojson".
	Source string `yaml:"source,omitempty"`

	// URL is the GeoJSON location: an http(s) URL or a file path.
	// "{farm}" is replaced by the farm id.
	URL string `yaml:"url,omitempty"`

	// FarmIDProperty is the feature property holding the farm id. When
	// empty, the whole collection is the boundary of every farm.
	FarmIDProperty string `yaml:"farmIdProperty,omitempty"`

	// Endpoint is the Overpass API interpreter URL.
	Endpoint string `yaml:"endpoint,omitempty"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn,omitempty"`

	// Table holds one row per farm.
	Table string `yaml:"table,omitempty"`

	// GeomColumn is the PostGIS geometry column.
	GeomColumn string `yaml:"geomColumn,omitempty"`

	// ClusterColumn and FarmColumn identify a row.
	ClusterColumn string `yaml:"clusterColumn,omitempty"`
	FarmColumn    string `yaml:"farmColumn,omitempty"`

	// GeoJSONColumn indicates that GeomColumn already holds GeoJSON text.
	GeoJSONColumn bool `yaml:"geojsonColumn,omitempty"`

	// Timeout bounds one boundary lookup.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Kind returns the source kind with the default applied.
func (c ClusterConfig) Kind() string {
	if c.Source == "" {
		return SourceGeoJSON
	}
	return strings.ToLower(c.Source)
}

// Defaults holds values used when the command line does not set them.
type Defaults struct {
	Project     string `yaml:"project,omitempty"`
	Credentials string `yaml:"credentials,omitempty"`
	Dataset     string `yaml:"dataset,omitempty"`
	Years       []int  `yaml:"years,omitempty"`
	Company     string `yaml:"company,omitempty"`
	Logo        string `yaml:"logo,omitempty"`
}

// File represents the structure of the .forestloss configuration file.
type File struct {
	// Defaults apply to every run unless overridden by flags.
	Defaults Defaults `yaml:"defaults,omitempty"`

	// Clusters maps cluster names to their boundary source.
	Clusters map[string]ClusterConfig `yaml:"clusters,omitempty"`
}

// Cluster returns the configuration of the named cluster. Names are matched
// case-insensitively.
func (cf *File) Cluster(name string) (ClusterConfig, bool) {
	if cf == nil {
		return ClusterConfig{}, false
	}
	if c, ok := cf.Clusters[name]; ok {
		return c, true
	}
	for k, c := range cf.Clusters {
		if strings.EqualFold(k, name) {
			return c, true
		}
	}
	return ClusterConfig{}, false
}

// ClusterNames returns the configured cluster names in sorted order.
func (cf *File) ClusterNames() []string {
	if cf == nil {
		return nil
	}
	names := make([]string, 0, len(cf.Clusters))
	for k := range cf.Clusters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
