package version

import "fmt"

// These variables will be injected at build time via ldflags
var (
	Version       = "dev"     // semantic version (e.g., v1.2.3)
	GitCommit     = "unknown" // git commit hash
	BuildDate     = "unknown" // build timestamp
	ComponentName = "lookout" // binary name, lookout or lookoutctl
)

// Info represents version information for a binary
type Info struct {
	Version       string `json:"version"`
	GitCommit     string `json:"git_commit"`
	BuildDate     string `json:"build_date"`
	ComponentName string `json:"component_name,omitempty"`
}

// GetInfo returns version information as a struct
func GetInfo() Info {
	return Info{
		Version:       Version,
		GitCommit:     GitCommit,
		BuildDate:     BuildDate,
		ComponentName: ComponentName,
	}
}

// GetShortCommit returns the short git commit hash (first 7 characters)
func GetShortCommit() string {
	if len(GitCommit) >= 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

// String renders a one-line version banner.
func String() string {
	return fmt.Sprintf("%s %s (%s, built %s)", ComponentName, Version, GetShortCommit(), BuildDate)
}
