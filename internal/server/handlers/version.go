package handlers

import "net/http"

// VersionInfo describes the running build.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

var buildInfo = VersionInfo{Version: "dev"}

// SetVersionInfo records the build identity served by VersionHandler.
func SetVersionInfo(version, commit, date string) {
	buildInfo = VersionInfo{Version: version, Commit: commit, Date: date}
}

// VersionHandler reports the build identity.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildInfo)
}
