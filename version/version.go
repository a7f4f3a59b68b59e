// Package version exposes build version information for the runtime.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time with -ldflags "-X .../version.Version=v1.2.3".
var (
	Version   = "dev"
	GitCommit = ""
)

// Info is the version payload reported by status endpoints.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
}

// Get assembles version information, falling back to the binary's embedded
// build info when ldflags were not provided.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = short(s.Value)
				}
			case "vcs.modified":
				info.Dirty = s.Value == "true"
			}
		}
	}
	return info
}

// String renders a human-readable version, e.g. "dev-3f2a1bc-dirty".
func (i Info) String() string {
	v := i.Version
	if i.GitCommit != "" {
		v = fmt.Sprintf("%s-%s", v, i.GitCommit)
	}
	if i.Dirty {
		v += "-dirty"
	}
	return v
}

func short(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
