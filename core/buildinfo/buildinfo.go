package buildinfo

import "fmt"

// Set at build time:
//
//	-X 'github.com/m3rciful/tonbot/core/buildinfo.Version=v0.3.0'
//	-X 'github.com/m3rciful/tonbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/tonbot/core/buildinfo.Date=2026-01-30T12:00:00Z'
var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// String renders the build as "version (commit, date)".
func String() string {
	date := Date
	if date == "" {
		date = "unknown date"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, date)
}
