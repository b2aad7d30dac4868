package models

// Artifact is a binary output file (typically a chart PNG) produced by the
// assistant and persisted locally.
type Artifact struct {
	FileID string `json:"fileId"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
}
