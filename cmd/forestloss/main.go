// Package main provides the entry point for the forestloss CLI.
//
// forestloss measures forest loss inside farm boundaries from the Hansen
// Global Forest Change dataset on Google Earth Engine and reports the
// deforested acres per year together with a risk classification.
//
// Usage:
//
//	forestloss analyze --cluster <cluster> <farm-id>...
//	forestloss history <cluster> <farm-id>
//
// See --help for all available options.
package main

// main is the entry point for forestloss.
func main() {
	Execute()
}
