package version

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags.
var (
	Version  = "unknown"
	Revision = "unknown"
	BuiltAt  = "unknown"
)

// String returns the human-readable version block.
func String() string {
	return fmt.Sprintf("warren %s\nrevision: %s\nbuilt: %s\n%s %s/%s\n",
		Version, Revision, BuiltAt, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
