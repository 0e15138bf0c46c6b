// Package envinfo reports runtime, platform, and build metadata for support
// and bug reports.
package envinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

type Info struct {
	Library        string            `json:"library"`
	SDK            string            `json:"sdk"`
	SDKVersion     string            `json:"sdk_version"`
	Runtime        string            `json:"runtime"`
	RuntimeVersion string            `json:"runtime_version"`
	Implementation string            `json:"implementation"`
	Platform       string            `json:"platform"`
	Dependencies   map[string]string `json:"dependencies,omitempty"`
}

// Collect gathers version information from the running binary. Dependency
// versions come from the embedded build info, so a `go run` or test binary
// reports them too.
func Collect() Info {
	info := Info{
		Library:        "langsmith",
		SDK:            "langsmith-trace-tools",
		SDKVersion:     "unknown",
		Runtime:        "go",
		RuntimeVersion: runtime.Version(),
		Implementation: runtime.Compiler,
		Platform:       fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.SDKVersion = bi.Main.Version
	} else {
		info.SDKVersion = "devel"
	}
	info.Dependencies = make(map[string]string, len(bi.Deps))
	for _, dep := range bi.Deps {
		info.Dependencies[dep.Path] = dep.Version
	}
	return info
}
