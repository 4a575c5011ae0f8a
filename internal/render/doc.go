// Package render draws the images embedded in reports: the farm boundary
// map and the yearly loss chart. Images are returned as encoded PNG bytes so
// report writers can treat them as opaque blobs.
package render
