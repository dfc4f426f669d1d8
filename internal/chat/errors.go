package chat

import "errors"

// FallbackReply is appended in place of a real reply whenever the
// completion request fails for any reason.
const FallbackReply = "My apologies, I seem to be experiencing technical difficulties... 💫"

var (
	ErrEmptyMessage     = errors.New("message is required")
	ErrExchangeInFlight = errors.New("a reply is still being written")
	ErrUnknownView      = errors.New("unknown view")

	// ErrAssistantUnavailable is the single failure kind of an exchange.
	// Network errors, timeouts, bad status codes and malformed payloads are
	// all wrapped under it.
	ErrAssistantUnavailable = errors.New("completion request failed")
)
