// Package version allows linker flags to be set at build time.
package version

// Some build information variables, printed on start of the simulator.
var (
	Version = "?"
	Commit  = "?"
	Built   = "?"
)
