// Package version reports build metadata set via ldflags or VCS stamping.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	tag       = "dev" // set via ldflags
	commit    = "123abc"
	buildTime = "now"
)

const releaseURL = "https://github.com/noot-app/petfood-nutrition-server/releases/tag/"

// buildInfoReader is a function type that can be mocked in tests
var buildInfoReader = debug.ReadBuildInfo

// Info is the resolved build metadata.
type Info struct {
	Tag       string `json:"tag"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get resolves build metadata. Values set via ldflags win over VCS stamps.
func Get() Info {
	info := Info{Tag: tag, Commit: commit, BuildTime: buildTime}

	bi, ok := buildInfoReader()
	if !ok || bi == nil {
		return info
	}
	for _, setting := range bi.Settings {
		switch {
		case setting.Key == "vcs.revision" && commit == "123abc":
			info.Commit = setting.Value
		case setting.Key == "vcs.time" && buildTime == "now":
			info.BuildTime = setting.Value
		}
	}
	return info
}

// Tag returns the release tag, used as the MCP server version.
func Tag() string {
	return tag
}

func String() string {
	info := Get()
	return fmt.Sprintf("%s (%s) built at %s\n%s%s", info.Tag, info.Commit, info.BuildTime, releaseURL, info.Tag)
}
