// Package buildinfo carries version data stamped in at link time.
package buildinfo

import (
	"time"
)

// Set via -ldflags at build time
var (
	Version    = "dev"
	BuildTime  string // when the binary was compiled
	CommitHash string // short git commit hash
)

var startedAt = time.Now().UTC()

// StartTime is when the process started, RFC3339
var StartTime = startedAt.Format(time.RFC3339)

// Info is the build and runtime summary reported by /health
type Info struct {
	Version    string `json:"version"`
	BuildTime  string `json:"buildTime,omitempty"`
	CommitHash string `json:"commit,omitempty"`
	StartTime  string `json:"startTime"`
	Uptime     string `json:"uptime"`
}

// Current returns the build info with uptime measured at now
func Current(now time.Time) Info {
	return Info{
		Version:    Version,
		BuildTime:  BuildTime,
		CommitHash: CommitHash,
		StartTime:  StartTime,
		Uptime:     now.Sub(startedAt).Truncate(time.Second).String(),
	}
}
