package buildconfig

import "runtime"

// Build-time variables injected via ldflags:
//
//	-X github.com/leadcrm/leadcrm/internal/buildconfig.version=v1.2.0
var (
	version = "dev"
	commit  = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// VersionInfo is reported on /health and by crmctl.
func VersionInfo() map[string]string {
	return map[string]string{
		"version":    version,
		"commit":     commit,
		"go_version": runtime.Version(),
	}
}
