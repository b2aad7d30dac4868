package events

import (
	"context"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// StreamDelta carries one response fragment to the frontend while a query is
// streaming, so the UI can render the transcript incrementally instead of
// waiting for the aggregated document.
type StreamDelta struct {
	SessionKey string    `json:"sessionKey"`
	Text       string    `json:"text"`
	IsCode     bool      `json:"isCode"`
	Role       string    `json:"role,omitempty"`
	FileIDs    []string  `json:"fileIds,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EmitDelta publishes a fragment delta scoped to the session carried by ctx.
var EmitDelta = func(ctx context.Context, delta StreamDelta) {}

// EnableRuntimeDeltaEmitter routes deltas through the Wails event bridge.
func EnableRuntimeDeltaEmitter() {
	EmitDelta = func(ctx context.Context, delta StreamDelta) {
		if delta.SessionKey == "" {
			delta.SessionKey = SessionFromContext(ctx)
		}
		if delta.Timestamp.IsZero() {
			delta.Timestamp = time.Now()
		}
		runtime.EventsEmit(ctx, ChatEventDelta, delta)
	}
}
