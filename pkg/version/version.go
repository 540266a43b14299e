// Package version identifies the running build in the startup banner, the
// LINE status card, and the OLED boot frame. The commit comes from the
// binary's embedded VCS info; deploy scripts that build from a tarball can
// inject it with -ldflags instead.
package version

import "runtime/debug"

// AppName prefixes version strings and the departure log entry.
const AppName = "shipos"

// gitCommitOverride is the -ldflags injection point for tarball builds
// with no .git directory. Empty means no override.
var gitCommitOverride string

// GitCommit is the 8-char commit hash the ship reports, or "dev" when no
// VCS info is embedded (go test, tarball builds without the override).
var GitCommit = initGitCommit()

func initGitCommit() string {
	if gitCommitOverride != "" {
		if len(gitCommitOverride) > 8 {
			return gitCommitOverride[:8]
		}
		return gitCommitOverride
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// Full returns "shipos/<commit>", the form the banners and logbook use.
func Full() string {
	return AppName + "/" + GitCommit
}
