// Package types holds types shared between the server package and its
// subpackages, where a direct import would create a cycle.
package types

import (
	"time"

	"github.com/mcouto/reparcel/buildinfo"
)

// ServerProperties describes the running server instance, reported on the
// status endpoint.
type ServerProperties struct {
	Build     buildinfo.Properties `json:"build"`
	GoVersion string               `json:"go_version"`
	StartedAt time.Time            `json:"started_at"`
	Hostname  string               `json:"hostname"`
}
