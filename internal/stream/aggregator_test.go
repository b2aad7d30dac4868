package stream

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sliceSource struct {
	fragments []*Fragment
	err       error
	pos       int
}

func (s *sliceSource) Recv() (*Fragment, error) {
	if s.pos >= len(s.fragments) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	frag := s.fragments[s.pos]
	s.pos++
	return frag, nil
}

func TestAggregate_ProseWithSingleRoleLabel(t *testing.T) {
	src := &sliceSource{fragments: []*Fragment{
		{Text: "Hello ", Role: "assistant"},
		{Text: "world", Role: "assistant"},
	}}

	result, err := Aggregate(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FormattedText != "\n**assistant:** Hello world" {
		t.Fatalf("unexpected text: %q", result.FormattedText)
	}
	if len(result.FileIDs) != 0 {
		t.Fatalf("expected no file ids, got %v", result.FileIDs)
	}
}

func TestAggregate_CodeBlockThenProse(t *testing.T) {
	src := &sliceSource{fragments: []*Fragment{
		{Text: "print(1)", IsCode: true},
		{Text: "\n", IsCode: true},
		{Text: "done", Role: "assistant"},
	}}

	result, err := Aggregate(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "\n\n```python\nprint(1)\n\n```\n\n**assistant:** done"
	if result.FormattedText != expected {
		t.Fatalf("unexpected text:\ngot  %q\nwant %q", result.FormattedText, expected)
	}
}

func TestAggregate_FileIDsPreserveOrderAndDuplicates(t *testing.T) {
	src := &sliceSource{fragments: []*Fragment{
		{Text: "see chart", Role: "assistant", FileIDs: []string{"f1"}},
		{Text: " and table", Role: "assistant", FileIDs: []string{"f2", "f1"}},
	}}

	result, err := Aggregate(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, []string{"f1", "f2", "f1"}, result.FileIDs)
	assert.Equal(t, "\n**assistant:** see chart and table", result.FormattedText)
}

func TestAggregate_StreamEndingInCodeClosesFence(t *testing.T) {
	src := &sliceSource{fragments: []*Fragment{
		{Text: "intro", Role: "assistant"},
		{Text: "x = 1", IsCode: true},
	}}

	result, err := Aggregate(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "\n**assistant:** intro\n\n```python\nx = 1\n```\n"
	if result.FormattedText != expected {
		t.Fatalf("unexpected text:\ngot  %q\nwant %q", result.FormattedText, expected)
	}
}

func TestAggregate_RoleIgnoredInsideCodeBlock(t *testing.T) {
	src := &sliceSource{fragments: []*Fragment{
		{Text: "a = 1\n", IsCode: true, Role: "assistant"},
		{Text: "b = 2\n", IsCode: true, Role: "tool"},
	}}

	result, err := Aggregate(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FormattedText != "\n\n```python\na = 1\nb = 2\n\n```\n" {
		t.Fatalf("role label leaked into code block: %q", result.FormattedText)
	}
}

func TestAggregate_RoleRecheckedAfterCodeBlock(t *testing.T) {
	src := &sliceSource{fragments: []*Fragment{
		{Text: "before", Role: "assistant"},
		{Text: "pass", IsCode: true},
		{Text: "after", Role: "assistant"},
	}}

	result, err := Aggregate(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Same role, but leaving the code block cleared the label state.
	expected := "\n**assistant:** before\n\n```python\npass\n```\n\n**assistant:** after"
	if result.FormattedText != expected {
		t.Fatalf("unexpected text:\ngot  %q\nwant %q", result.FormattedText, expected)
	}
}

func TestAggregate_RoleTransitionEmitsNewLabel(t *testing.T) {
	src := &sliceSource{fragments: []*Fragment{
		{Text: "thinking", Role: "tool"},
		{Text: " answer", Role: "assistant"},
	}}

	result, err := Aggregate(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, "\n**tool:** thinking\n**assistant:**  answer", result.FormattedText)
}

func TestAggregate_MissingRoleNeverEmitsLabel(t *testing.T) {
	src := &sliceSource{fragments: []*Fragment{
		{Text: "plain "},
		{Text: "text"},
	}}

	result, err := Aggregate(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FormattedText != "plain text" {
		t.Fatalf("unexpected text: %q", result.FormattedText)
	}
}

func TestAggregate_EmptyStream(t *testing.T) {
	result, err := Aggregate(context.Background(), &sliceSource{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Empty(t, result.FormattedText)
	assert.Empty(t, result.FileIDs)
}

func TestAggregate_NilFragmentsSkipped(t *testing.T) {
	src := &sliceSource{fragments: []*Fragment{
		nil,
		{Text: "ok", Role: "assistant"},
		nil,
	}}

	result, err := Aggregate(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assert.Equal(t, "\n**assistant:** ok", result.FormattedText)
}

func TestAggregate_SourceErrorDiscardsPartial(t *testing.T) {
	streamErr := errors.New("stream reset")
	src := &sliceSource{
		fragments: []*Fragment{{Text: "partial", Role: "assistant"}},
		err:       streamErr,
	}

	result, err := Aggregate(context.Background(), src)
	if !errors.Is(err, streamErr) {
		t.Fatalf("expected stream error, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result on stream failure, got %+v", result)
	}
}

func TestAggregate_CancellationReturnsPartialWithOpenFence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fragments := []*Fragment{
		{Text: "before ", Role: "assistant", FileIDs: []string{"f1"}},
		{Text: "x = 1\n", IsCode: true},
	}
	src := &cancellingSource{inner: &sliceSource{fragments: fragments}, cancelAfter: 2, cancel: cancel}

	result, err := Aggregate(ctx, src)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil {
		t.Fatal("expected partial result on cancellation")
	}
	// The fence stays open: cancellation does not auto-flush.
	assert.Equal(t, "\n**assistant:** before \n\n```python\nx = 1\n", result.FormattedText)
	assert.Equal(t, []string{"f1"}, result.FileIDs)
}

func TestAggregate_CancelErrorFromSourceReturnsPartial(t *testing.T) {
	src := &sliceSource{
		fragments: []*Fragment{{Text: "partial", Role: "assistant"}},
		err:       context.Canceled,
	}

	result, err := Aggregate(context.Background(), src)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil || result.FormattedText != "\n**assistant:** partial" {
		t.Fatalf("expected partial transcript, got %+v", result)
	}
}

// cancellingSource cancels the aggregation context after a fixed number of
// fragments have been delivered.
type cancellingSource struct {
	inner       *sliceSource
	cancelAfter int
	cancel      context.CancelFunc
	delivered   int
}

func (s *cancellingSource) Recv() (*Fragment, error) {
	frag, err := s.inner.Recv()
	if err != nil {
		return nil, err
	}
	s.delivered++
	if s.delivered >= s.cancelAfter {
		s.cancel()
	}
	return frag, nil
}
