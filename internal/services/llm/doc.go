// Package llm narrates finished pipeline steps through an OpenRouter chat
// completion endpoint.
//
// Reflect sends the caller's instructions as the system message and the step
// facts, encoded as JSON, as the user message. The reply is expected to be a
// {"summary": "..."} object; fenced or prose-wrapped objects are accepted and
// a bare sentence is used as the summary directly.
//
// Failed calls are retried on HTTP 408/429/5xx, empty completions and network
// timeouts (three attempts by default). After three consecutive failed
// reflections a circuit breaker pauses the model for two minutes and Reflect
// returns ErrUnavailable at once, so a broken key or endpoint costs each step
// nothing while callers fall back to template text.
package llm
