package version

import "runtime/debug"

// Version is set at build time via -ldflags; for go install builds it falls
// back to the module version from the embedded build info.
var Version = "dev"

func init() {
	if Version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}
