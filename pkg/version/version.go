package version

import (
	"fmt"
	"runtime"
)

// Stamped at build time via -ldflags.
var (
	gitVersion = "v0.0.0-devel"
	gitCommit  = ""
	buildDate  = "1970-01-01T00:00:00Z"
)

// Info holds the build metadata stamped into the binary.
type Info struct {
	GitVersion string `json:"gitVersion"`
	GitCommit  string `json:"gitCommit"`
	BuildDate  string `json:"buildDate"`
	GoVersion  string `json:"goVersion"`
	Platform   string `json:"platform"`
}

// String returns the semantic version of the build.
func (i Info) String() string {
	return i.GitVersion
}

// Get returns the version info of the running binary.
func Get() Info {
	return Info{
		GitVersion: gitVersion,
		GitCommit:  gitCommit,
		BuildDate:  buildDate,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
