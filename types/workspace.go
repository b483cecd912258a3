package types

import "time"

// WorkspaceInfo is one row of the workspace listing. Dirtiness is computed
// on demand (a remote git status), never carried here.
type WorkspaceInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	LastModified time.Time `json:"last_modified"`
}
