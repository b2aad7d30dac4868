package stream

// Fragment is one unit of a streamed assistant response: a chunk of prose or
// code text, optionally carrying the speaker role and references to binary
// artifacts (chart images) produced alongside it.
type Fragment struct {
	Text    string   `json:"text"`
	IsCode  bool     `json:"isCode"`
	Role    string   `json:"role,omitempty"`
	FileIDs []string `json:"fileIds,omitempty"`
}

// Source delivers fragments in arrival order. Recv blocks until the next
// fragment is available and returns io.EOF once the remote turn completes.
// Implementations are single-consumer; Aggregate is the only reader per call.
type Source interface {
	Recv() (*Fragment, error)
}

// SourceCloser is implemented by sources holding transport resources.
type SourceCloser interface {
	Source
	Close()
}
