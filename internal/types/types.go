package types

import "seiko-companion/internal/persona"

type ChatRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	SessionID string `json:"sessionId"`
	Reply     string `json:"reply"`
	// Failed is true when Reply is the fallback apology.
	Failed bool          `json:"failed"`
	State  StateResponse `json:"state"`
}

type ViewRequest struct {
	View string `json:"view"`
}

// Message is a log entry as rendered for the client; Role is derived from
// the entry's position in the log.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type StateResponse struct {
	SessionID string    `json:"sessionId"`
	View      string    `json:"view"`
	Greeting  []string  `json:"greeting"`
	Messages  []Message `json:"messages"`
	Typing    bool      `json:"typing"`
}

type GalleryResponse struct {
	Items []persona.GalleryItem `json:"items"`
}

type AboutResponse struct {
	Name       string   `json:"name"`
	Paragraphs []string `json:"paragraphs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
