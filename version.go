package cdcmerge

import (
	"github.com/segmentio/cdcmerge/pkg/version"
)

// Version is the current cdcmerge library version.
var Version string

func init() {
	Version = version.Get()
}
