package command

import (
	"fmt"
	"strings"
)

// DefaultPrefix is used when a platform has no configured prefix.
const DefaultPrefix = "!"

// Parse is the single ingress point for raw chat text. It returns the
// lower-cased command name and its argument tokens, or a user-facing
// rejection message when the text is not a well-formed command.
func Parse(raw, prefix string) (name string, args []string, reject string) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, prefix) {
		return "", nil, fmt.Sprintf("Commands must start with %s", prefix)
	}

	text = strings.TrimPrefix(text, prefix)
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return "", nil, fmt.Sprintf("Please provide a command. Try %shelp to see available commands.", prefix)
	}

	return strings.ToLower(tokens[0]), tokens[1:], ""
}
