package internal

import (
	"time"

	"storyfront/internal/story"
)

type (
	Response struct {
		Message string `json:"message"`
	}

	// Panel is what panel.html renders. Autoplay is set only on the render that delivers
	// a fresh narration; the audio element is preserved across later swaps.
	Panel struct {
		story.View
		Autoplay bool
	}

	StoryEvent struct {
		Session string    `json:"session"`
		Kind    string    `json:"kind"`
		State   string    `json:"state"`
		StoryID string    `json:"storyId,omitempty"`
		Error   string    `json:"error,omitempty"`
		At      time.Time `json:"at"`
	}
)
