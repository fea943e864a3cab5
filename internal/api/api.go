// Package api defines the JSON bodies exchanged with the chat endpoints.
package api

import (
	"github.com/raphaelgruber/pluisje-go/internal/metrics"
	"github.com/raphaelgruber/pluisje-go/internal/store"
)

// Endpoint paths.
const (
	PathLogin         = "/login"
	PathGenerate      = "/generate"
	PathGenerateImage = "/generate-image"
	PathStream        = "/generate/stream"
	PathReset         = "/reset"
	PathLogout        = "/logout"
	PathStats         = "/stats"
	PathHealth        = "/health"
)

// HeaderRequestedWith marks script requests so that auth failures answer
// with JSON instead of a redirect.
const (
	HeaderRequestedWith = "X-Requested-With"
	XMLHttpRequest      = "XMLHttpRequest"
)

// GenerateRequest is the body of /generate, /generate-image and each
// message sent over the stream socket.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateResponse is the /generate result. Response is set in the default
// mode, LongResponse and ShortResponse in dual response mode.
type GenerateResponse struct {
	Response      string `json:"response,omitempty"`
	LongResponse  string `json:"long_response,omitempty"`
	ShortResponse string `json:"short_response,omitempty"`
}

// Text returns the full reply in either mode.
func (r GenerateResponse) Text() string {
	if r.LongResponse != "" {
		return r.LongResponse
	}
	return r.Response
}

// ImageResponse is the /generate-image result.
type ImageResponse struct {
	ImageURL string `json:"image_url"`
}

// ErrorResponse is returned with every 4xx/5xx JSON answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Stream event types.
const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// StreamEvent is one server message on the stream socket. A prompt yields
// zero or more chunk events followed by exactly one done or error event.
type StreamEvent struct {
	Type          string `json:"type"`
	Content       string `json:"content,omitempty"`
	Response      string `json:"response,omitempty"`
	ShortResponse string `json:"short_response,omitempty"`
	Error         string `json:"error,omitempty"`
}

// StatsResponse is the /stats result.
type StatsResponse struct {
	Metrics  metrics.Snapshot `json:"metrics"`
	Store    store.Stats      `json:"store"`
	Sessions int              `json:"sessions"`
}
