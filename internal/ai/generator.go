// Package ai implements the AI collaborator flows (recommendations, eco
// sentiment, visual search, voice commands, eco planning, product images and
// speech) on top of a Generator backend.
//
// Every flow is best effort: a failed, empty or malformed model response is
// reported as ErrUnavailable and callers degrade to "no result".
package ai

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// Flow errors.
var (
	ErrUnavailable      = errors.New("ai collaborator unavailable")
	ErrNotConfigured    = errors.New("ai collaborator not configured")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrEmptyInput       = errors.New("ai input is empty")
)

// Part is one piece of a prompt: text or inline bytes.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// JSONRequest asks for a JSON document constrained by Schema.
type JSONRequest struct {
	Flow   string
	Parts  []Part
	Schema *genai.Schema
}

// Generator is the model backend the flows call.
type Generator interface {
	// GenerateJSON returns the raw JSON text produced for req.
	GenerateJSON(ctx context.Context, req JSONRequest) (string, error)
	// GenerateImage returns image bytes and their MIME type.
	GenerateImage(ctx context.Context, prompt string) ([]byte, string, error)
	// Speak returns 16-bit little-endian mono PCM at SpeechSampleRate.
	Speak(ctx context.Context, text string) ([]byte, error)
}

// Disabled is the Generator used when no API key is configured.
type Disabled struct{}

func (Disabled) GenerateJSON(context.Context, JSONRequest) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) GenerateImage(context.Context, string) ([]byte, string, error) {
	return nil, "", ErrNotConfigured
}

func (Disabled) Speak(context.Context, string) ([]byte, error) {
	return nil, ErrNotConfigured
}
