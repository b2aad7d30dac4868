package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// The persisted formatting contract: fenced python blocks and bold role
// labels, matching what the markdown presentation layer renders.
const (
	codeFenceOpen  = "\n\n```python\n"
	codeFenceClose = "\n```\n"
)

// Result is the outcome of aggregating one response stream.
// FileIDs keeps arrival order and duplicates; dedup policy belongs to the
// caller that downloads them.
type Result struct {
	FormattedText string   `json:"formattedText"`
	FileIDs       []string `json:"fileIds"`
}

// Aggregate consumes src until io.EOF and merges the fragments into a single
// markdown document plus the list of referenced artifact ids.
//
// Prose fragments are prefixed with a "\n**role:** " label whenever the role
// differs from the previous prose fragment's. Code fragments are appended
// verbatim inside a python fence; the label state resets on every fence
// transition, so the first prose fragment after a code block is labeled again.
// A stream ending inside a code block still yields a closed fence.
//
// Cancellation of ctx stops consumption and returns the partial result built
// so far together with ctx's error; an open fence is intentionally left
// unclosed in that case. Any other source error returns (nil, err) and the
// partial buffer is discarded.
func Aggregate(ctx context.Context, src Source) (*Result, error) {
	var (
		buf      strings.Builder
		fileIDs  []string
		inCode   bool
		lastRole string
	)

	partial := func() *Result {
		return &Result{FormattedText: buf.String(), FileIDs: fileIDs}
	}

	for {
		if err := ctx.Err(); err != nil {
			return partial(), err
		}

		frag, err := src.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return partial(), err
			}
			return nil, err
		}
		if frag == nil {
			continue
		}

		if frag.IsCode {
			if !inCode {
				buf.WriteString(codeFenceOpen)
				inCode = true
				lastRole = ""
			}
			buf.WriteString(frag.Text)
		} else {
			if inCode {
				buf.WriteString(codeFenceClose)
				inCode = false
				lastRole = ""
			}
			if frag.Role != "" && frag.Role != lastRole {
				buf.WriteString(fmt.Sprintf("\n**%s:** ", frag.Role))
				lastRole = frag.Role
			}
			buf.WriteString(frag.Text)
		}

		fileIDs = append(fileIDs, frag.FileIDs...)
	}

	if inCode {
		buf.WriteString(codeFenceClose)
	}

	return partial(), nil
}
