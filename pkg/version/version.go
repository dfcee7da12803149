package version

var version = "unknown"

// Get returns the cdcmerge module version.
func Get() string {
	return version
}
