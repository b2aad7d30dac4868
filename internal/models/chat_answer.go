package models

// ChatAnswer captures the outcome of one streamed query: the aggregated
// markdown document, the artifact ids referenced by the stream (arrival
// order, duplicates preserved) and the artifacts that were actually
// downloaded. Partial is set when the user cancelled mid-stream and the
// transcript was cut short.
type ChatAnswer struct {
	SessionID  uint       `json:"sessionId"`
	SessionKey string     `json:"sessionKey"`
	Markdown   string     `json:"markdown"`
	FileIDs    []string   `json:"fileIds,omitempty"`
	Artifacts  []Artifact `json:"artifacts,omitempty"`
	Partial    bool       `json:"partial,omitempty"`
}
