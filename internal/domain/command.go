package domain

import "context"

// ArgValidator checks one positional argument before the handler runs.
type ArgValidator func(value string) error

// Handler executes a command invocation and returns the typed result.
// Errors are converted to a user-facing reply at the dispatch boundary,
// never propagated to the transport.
type Handler func(ctx context.Context, inv Invocation) (Result, error)

// CommandSpec declares one chat command in a single place: help text,
// required permission, argument shape, and handler. Specs are immutable
// and registered at process start.
type CommandSpec struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Example     string       `json:"example"`
	Permission  Permission   `json:"permission"`
	Platforms   []Platform   `json:"platforms,omitempty"` // empty means all

	RequiredArgs int `json:"required_args"`
	OptionalArgs int `json:"optional_args"`
	// MultiWordFrom collapses every token from this index onward into one
	// argument (a trailing free-text field such as a case title). -1
	// disables collapsing.
	MultiWordFrom int            `json:"-"`
	Validators    []ArgValidator `json:"-"`

	Handler Handler `json:"-"`
}

// AllowedOn reports whether the command may run on the given platform.
func (c CommandSpec) AllowedOn(p Platform) bool {
	if len(c.Platforms) == 0 {
		return true
	}
	for _, allowed := range c.Platforms {
		if allowed == p {
			return true
		}
	}
	return false
}

// UserType distinguishes chat-originated invocations from trusted calls
// made through the administrative web UI.
const (
	UserTypeChat = "chat"
	UserTypeWeb  = "web"
)

// Invocation is one parsed command call. It lives only for the duration
// of a single dispatch and is never persisted.
type Invocation struct {
	Raw         string
	Prefix      string
	Command     string
	Args        []string
	Platform    Platform
	UserID      string
	Username    string
	DisplayName string
	ChannelID   string
	UserType    string
}

// ResultKind tags a dispatch outcome.
type ResultKind string

const (
	ResultOK      ResultKind = "ok"
	ResultUnknown ResultKind = "unknown_command"
	ResultDenied  ResultKind = "permission_denied"
	ResultInvalid ResultKind = "invalid_arguments"
	ResultError   ResultKind = "execution_error"
)

// Result is the typed outcome of a dispatch. Channels render Text (and
// the optional file) onto the transport; non-OK kinds carry the
// user-facing failure message in Text. Code marks output that should be
// rendered monospace (channels fence it as the platform allows).
type Result struct {
	Kind ResultKind
	Text string
	Code bool
	File *File
}

// OK wraps a successful reply.
func OK(text string) Result {
	return Result{Kind: ResultOK, Text: text}
}

// CodeBlock wraps a successful reply that should render monospace.
func CodeBlock(text string) Result {
	return Result{Kind: ResultOK, Text: text, Code: true}
}

// File is an attachment delivered alongside a reply, used when output
// exceeds a platform's message limit.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}
