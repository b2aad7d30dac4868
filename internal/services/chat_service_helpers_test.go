package services

import (
	"testing"
)

func TestMakeSessionKey(t *testing.T) {
	if got := makeSessionKey(42); got != "session:42" {
		t.Fatalf("expected session:42, got %s", got)
	}
}

func TestResolveSessionKey(t *testing.T) {
	cases := []struct {
		name     string
		override string
		id       uint
		expected string
	}{
		{"empty override", "", 7, "session:7"},
		{"whitespace override", "   ", 7, "session:7"},
		{"explicit override", "ui:left-pane", 7, "ui:left-pane"},
		{"trimmed override", " custom ", 7, "custom"},
	}

	for _, tc := range cases {
		if got := resolveSessionKey(tc.override, tc.id); got != tc.expected {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.expected, got)
		}
	}
}

func TestParseChatMessagesJSONFiltersInvalidEntries(t *testing.T) {
	raw := `[
		{"role":"user","content":"show revenue"},
		{"role":"assistant","content":"here is the chart"},
		{"role":"system","content":"hidden"},
		{"role":"user","content":"   "},
		{"role":"ASSISTANT","content":"uppercase role"}
	]`

	msgs := parseChatMessagesJSON(raw)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "show revenue" {
		t.Fatalf("unexpected first message: %+v", msgs[0])
	}
	if msgs[2].Role != "assistant" || msgs[2].Content != "uppercase role" {
		t.Fatalf("expected role to be normalized, got %+v", msgs[2])
	}
}

func TestParseChatMessagesJSONTolerantOfGarbage(t *testing.T) {
	for _, raw := range []string{"", "[]", "not json", "{\"role\":1}"} {
		if msgs := parseChatMessagesJSON(raw); msgs != nil {
			t.Fatalf("expected nil for %q, got %+v", raw, msgs)
		}
	}
}

func TestMarshalChatMessagesRoundTrip(t *testing.T) {
	msgs := appendChatMessages(nil, "plot sales by month", "done, see the chart")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	parsed := parseChatMessagesJSON(marshalChatMessages(msgs))
	if len(parsed) != 2 {
		t.Fatalf("expected 2 messages after round trip, got %d", len(parsed))
	}
	if parsed[0].Role != "user" || parsed[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %s, %s", parsed[0].Role, parsed[1].Role)
	}
	if parsed[0].CreatedAt == "" {
		t.Fatal("expected timestamps to survive the round trip")
	}
}

func TestMarshalChatMessagesEmpty(t *testing.T) {
	if got := marshalChatMessages(nil); got != "[]" {
		t.Fatalf("expected [], got %s", got)
	}
}

func TestAppendChatMessagesSkipsBlankEntries(t *testing.T) {
	msgs := appendChatMessages(nil, "  ", "partial answer")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != "assistant" {
		t.Fatalf("expected assistant message, got %s", msgs[0].Role)
	}

	if got := appendChatMessages(nil, " ", " "); got != nil {
		t.Fatalf("expected nil when both sides are blank, got %+v", got)
	}
}
