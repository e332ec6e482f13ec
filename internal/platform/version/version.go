// Package version carries the build metadata served on /version and
// logged at startup. Values are stamped at link time:
//
//	go build -ldflags "\
//	  -X .../internal/platform/version.Version=v1.2.0 \
//	  -X .../internal/platform/version.Commit=$(git rev-parse --short HEAD) \
//	  -X .../internal/platform/version.BuildTime=$(date -u +%FT%TZ)"
package version

import "runtime"

// Defaults cover plain `go build` runs during development.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the payload of the version endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get combines the stamped values with the Go toolchain the binary was
// built with.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}
