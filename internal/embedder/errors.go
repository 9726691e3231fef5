package embedder

import "fmt"

// EmbedError reports a failed embedding call: provider unreachable, auth
// rejected, or a malformed response. Callers that must degrade gracefully
// (conversation recording) match on this type.
type EmbedError struct {
	// Provider is the backend name (ollama, openai, azure).
	Provider string
	// Err is the underlying cause.
	Err error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("embedder: %s: %v", e.Provider, e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }
