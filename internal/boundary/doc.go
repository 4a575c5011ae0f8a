// Package boundary looks up farm boundaries.
//
// Each cluster of farms is served by one Source configured in .forestloss:
// a GeoJSON document (remote or local), OpenStreetMap through the Overpass
// API, or a PostGIS table. Sources return validated model.Regions.
package boundary
