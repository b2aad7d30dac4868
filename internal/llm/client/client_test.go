package client

import (
	"testing"

	"github.com/cloudwego/eino/schema"
)

func msg(role schema.RoleType, content string) *schema.Message {
	return &schema.Message{Role: role, Content: content}
}

func TestNormalizeConversationHistory_PreservesValidHistory(t *testing.T) {
	original := []*schema.Message{
		msg(schema.User, "first"),
		msg(schema.Assistant, "reply"),
	}

	result, changed := normalizeConversationHistory(original, "ignored")

	if changed {
		t.Fatalf("expected no change, got changed history")
	}
	if len(result) != len(original) {
		t.Fatalf("unexpected length: got %d want %d", len(result), len(original))
	}
	for i := range original {
		if result[i] != original[i] {
			t.Fatalf("message pointer at %d changed", i)
		}
	}
}

func TestNormalizeConversationHistory_AllowsLeadingSystem(t *testing.T) {
	original := []*schema.Message{
		msg(schema.System, "sys"),
		msg(schema.User, "first"),
	}

	result, changed := normalizeConversationHistory(original, "ignored")

	if changed {
		t.Fatalf("expected no change when first non-system is user")
	}
	if len(result) != len(original) {
		t.Fatalf("unexpected length: got %d want %d", len(result), len(original))
	}
}

func TestNormalizeConversationHistory_DropsLeadingAssistant(t *testing.T) {
	original := []*schema.Message{
		msg(schema.Assistant, "intro"),
		msg(schema.User, "question"),
		msg(schema.Assistant, "answer"),
	}

	result, changed := normalizeConversationHistory(original, "fallback")

	if !changed {
		t.Fatalf("expected change when leading assistant present")
	}
	if len(result) != 2 {
		t.Fatalf("unexpected length: got %d want 2", len(result))
	}
	if result[0].Role != schema.User {
		t.Fatalf("first message role %q, expected user", result[0].Role)
	}
	if result[0].Content != "question" {
		t.Fatalf("unexpected first content: %q", result[0].Content)
	}
}

func TestNormalizeConversationHistory_InsertsFallbackWhenNoUser(t *testing.T) {
	original := []*schema.Message{
		msg(schema.Assistant, "reply"),
	}

	result, changed := normalizeConversationHistory(original, "fallback message")

	if !changed {
		t.Fatalf("expected change when inserting fallback")
	}
	if len(result) != 2 {
		t.Fatalf("unexpected length: got %d want 2", len(result))
	}
	if result[0].Role != schema.User {
		t.Fatalf("first message role %q, expected user", result[0].Role)
	}
	if result[0].Content != "fallback message" {
		t.Fatalf("fallback content mismatch: %q", result[0].Content)
	}
}

func TestNormalizeConversationHistory_UsesDefaultFallbackWhenEmpty(t *testing.T) {
	original := []*schema.Message{
		msg(schema.Assistant, "reply"),
	}

	result, changed := normalizeConversationHistory(original, "")

	if !changed {
		t.Fatalf("expected change when inserting default fallback")
	}
	if result[0].Role != schema.User {
		t.Fatalf("first message role %q, expected user", result[0].Role)
	}
	if result[0].Content == "" {
		t.Fatalf("default fallback content should not be empty")
	}
}

func TestFragmentFromMessage_MapsMetadata(t *testing.T) {
	m := &schema.Message{
		Role:    schema.Assistant,
		Content: "df.plot()",
		Extra: map[string]any{
			"code":     true,
			"file_ids": []any{"assistant-f1", "assistant-f2"},
		},
	}

	frag := fragmentFromMessage(m)
	if frag == nil {
		t.Fatal("expected fragment")
	}
	if !frag.IsCode {
		t.Fatal("expected code fragment")
	}
	if frag.Text != "df.plot()" {
		t.Fatalf("unexpected text: %q", frag.Text)
	}
	if frag.Role != "assistant" {
		t.Fatalf("unexpected role: %q", frag.Role)
	}
	if len(frag.FileIDs) != 2 || frag.FileIDs[0] != "assistant-f1" || frag.FileIDs[1] != "assistant-f2" {
		t.Fatalf("unexpected file ids: %v", frag.FileIDs)
	}
}

func TestFragmentFromMessage_DefaultsWhenMetadataAbsent(t *testing.T) {
	frag := fragmentFromMessage(msg(schema.Assistant, "hello"))
	if frag == nil {
		t.Fatal("expected fragment")
	}
	if frag.IsCode {
		t.Fatal("missing metadata must default to prose")
	}
	if frag.FileIDs != nil {
		t.Fatalf("expected no file ids, got %v", frag.FileIDs)
	}
}

func TestFragmentFromMessage_ToleratesMalformedMetadata(t *testing.T) {
	m := &schema.Message{
		Role:    schema.Assistant,
		Content: "x",
		Extra: map[string]any{
			"code":     42,
			"file_ids": map[string]any{"not": "a list"},
		},
	}

	frag := fragmentFromMessage(m)
	if frag.IsCode {
		t.Fatal("non-bool code flag must default to false")
	}
	if frag.FileIDs != nil {
		t.Fatalf("malformed file ids must be dropped, got %v", frag.FileIDs)
	}
}

func TestFragmentFromMessage_NilMessage(t *testing.T) {
	if frag := fragmentFromMessage(nil); frag != nil {
		t.Fatalf("expected nil fragment, got %+v", frag)
	}
}
