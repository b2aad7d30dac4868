package client

import (
	"csvchat/internal/stream"

	"github.com/cloudwego/eino/schema"
)

// Metadata keys the hosted assistant attaches to streamed message chunks.
// Chunks produced while the code interpreter runs carry "code"; chunks that
// reference generated artifacts carry "file_ids".
const (
	metadataCodeKey    = "code"
	metadataFileIDsKey = "file_ids"
)

// messageSource adapts an eino message stream into a fragment source.
// Recv mirrors the reader's contract: it blocks until the next chunk arrives
// and returns io.EOF when the remote turn completes.
type messageSource struct {
	reader *schema.StreamReader[*schema.Message]
}

func (s *messageSource) Recv() (*stream.Fragment, error) {
	msg, err := s.reader.Recv()
	if err != nil {
		return nil, err
	}
	return fragmentFromMessage(msg), nil
}

func (s *messageSource) Close() {
	s.reader.Close()
}

// fragmentFromMessage maps one streamed message chunk onto the aggregator's
// fragment shape. Absent or malformed metadata degrades to defaults rather
// than erroring; the aggregator never validates these fields.
func fragmentFromMessage(msg *schema.Message) *stream.Fragment {
	if msg == nil {
		return nil
	}
	return &stream.Fragment{
		Text:    msg.Content,
		IsCode:  extraBool(msg.Extra, metadataCodeKey),
		Role:    string(msg.Role),
		FileIDs: extraStrings(msg.Extra, metadataFileIDsKey),
	}
}

func extraBool(extra map[string]any, key string) bool {
	if extra == nil {
		return false
	}
	switch v := extra[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

func extraStrings(extra map[string]any, key string) []string {
	if extra == nil {
		return nil
	}
	switch v := extra[key].(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
