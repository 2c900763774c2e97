// Package version exposes the build version, set at link time with
// -ldflags "-X github.com/rshade/forecastrun/pkg/version.version=v1.2.3".
package version

//nolint:gochecknoglobals // Overridden by the linker.
var version = "dev"

// GetVersion returns the build version.
func GetVersion() string {
	return version
}
