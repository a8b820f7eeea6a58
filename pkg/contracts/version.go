package contracts

import (
	"fmt"
	"runtime"
	"strings"
)

// Version is the release version of the pipeline
const Version = "1.0.0"

const (
	// DataFormatVersion changes when a stage table gains or loses columns
	DataFormatVersion = "v1"
	APIVersion        = "v1"
)

// Set at build time:
//
//	go build -ldflags "-X leadscoring/pkg/contracts.GitCommit=$(git rev-parse --short HEAD)"
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionInfo describes the running binary
type VersionInfo struct {
	Version      string `json:"version"`
	BuildTime    string `json:"build_time"`
	GitCommit    string `json:"git_commit"`
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	DataFormat   string `json:"data_format"`
	APIVersion   string `json:"api_version"`
}

// GetVersionInfo returns the version of this binary
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:      Version,
		BuildTime:    BuildTime,
		GitCommit:    GitCommit,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		DataFormat:   DataFormatVersion,
		APIVersion:   APIVersion,
	}
}

// Platform returns os/arch
func (v VersionInfo) Platform() string {
	return v.OS + "/" + v.Architecture
}

// String renders the one-line form printed by --version
func (v VersionInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "leadscoring v%s", v.Version)
	fmt.Fprintf(&b, " (commit %s, built %s, %s %s, tables %s)",
		v.GitCommit, v.BuildTime, v.GoVersion, v.Platform(), v.DataFormat)
	return b.String()
}

// GetFullVersionString is GetVersionInfo().String()
func GetFullVersionString() string {
	return GetVersionInfo().String()
}
