package story

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
)

type (
	GenerateResult struct {
		Story    string
		Analysis string
		StoryID  string
	}

	RegenerateResult struct {
		Story   string
		StoryID string
	}

	// Backend is the story server. Errors are expected to be *RequestError; anything
	// else is reported as a transport failure.
	Backend interface {
		Upload(ctx context.Context, img *Image) (*GenerateResult, error)
		Regenerate(ctx context.Context, directive string) (*RegenerateResult, error)
		StoryURL(id string) string
	}

	// SpeechBackend is the optional narration capability of a Backend.
	SpeechBackend interface {
		GenerateSpeech(ctx context.Context, text, storyID string) (audioURL string, err error)
		FetchAudio(ctx context.Context, audioURL string) (io.ReadCloser, error)
	}

	Clipboard interface {
		WriteText(ctx context.Context, text string) error
	}

	ClipboardFunc func(ctx context.Context, text string) error
)

func (f ClipboardFunc) WriteText(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Wire format shared with the story server.
type (
	Response struct {
		Success       bool   `json:"success"`
		Story         string `json:"story,omitempty"`
		ImageAnalysis string `json:"imageAnalysis,omitempty"`
		StoryID       WireID `json:"storyId,omitempty"`
		AudioPath     string `json:"audioPath,omitempty"`
		Error         string `json:"error,omitempty"`
	}

	RegenerateRequest struct {
		Prompt string `json:"prompt"`
	}

	SpeechRequest struct {
		Text    string  `json:"text"`
		StoryID *string `json:"storyId"`
	}

	// WireID accepts a story id sent either as a JSON string or a JSON number.
	WireID string
)

func (id *WireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = WireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = WireID(n.String())
	return nil
}
