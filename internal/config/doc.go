// Package config provides configuration structures and utilities for forestloss.
// It defines the options of an analysis run (cluster, farms, years, Earth
// Engine settings, report output) and the .forestloss file that maps cluster
// names to boundary sources.
package config
