package client

import (
	"embed"
	"strings"
)

// embeddedPrompts holds the built-in assistant instructions so packaged
// executables can load them without needing access to the source tree.
//
//go:embed prompts/*.txt
var embeddedPrompts embed.FS

func assistantInstructions() string {
	data, err := embeddedPrompts.ReadFile("prompts/assistant_instructions.txt")
	if err != nil {
		// The embed directive guarantees the file exists at build time.
		return "Analyze the available data to provide an answer to the user's question."
	}
	return strings.TrimSpace(string(data))
}
