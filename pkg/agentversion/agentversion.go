package agentversion

import "fmt"

// Set at build time with -ldflags "-X github.com/bizflycloud/beebotte-mqtt/pkg/agentversion.version=...".
var (
	version   string
	commit    string
	buildTime string
)

// Version returns agent version.
func Version() string {
	if version == "" {
		return "dev"
	}
	return version
}

func GitCommit() string {
	return commit
}

func BuildTime() string {
	return buildTime
}

// String returns version, commit and build time on one line.
func String() string {
	return fmt.Sprintf("version: %s, commit: %s, build time: %s", Version(), commit, buildTime)
}
