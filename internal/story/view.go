package story

import (
	"maps"
	"slices"
	"time"
)

type EventKind string

const (
	EventImageSelected     EventKind = "image_selected"
	EventGenerateStarted   EventKind = "generate_started"
	EventStoryGenerated    EventKind = "story_generated"
	EventRegenerateStarted EventKind = "regenerate_started"
	EventStoryRegenerated  EventKind = "story_regenerated"
	EventNarrationStarted  EventKind = "narration_started"
	EventNarrationReady    EventKind = "narration_ready"
	EventCopyConfirmed     EventKind = "copy_confirmed"
	EventCopyReverted      EventKind = "copy_reverted"
	EventFailed            EventKind = "failed"
	EventReset             EventKind = "reset"
)

type (
	// View is what the page shows for the controller at one moment.
	View struct {
		State              State
		ImageName          string
		PreviewURL         string
		GenerateEnabled    bool
		Loading            bool
		Story              string
		Paragraphs         []string
		Analysis           string
		StoryID            string
		StoryLink          string
		AudioURL           string
		AudioPlaying       bool
		NarrationAvailable bool
		Narrating          bool
		CopyConfirmed      bool
		Error              string
	}

	Event struct {
		Kind EventKind
		// Seq increases with every event of one controller. Listeners run outside the
		// lock, so concurrent transitions may be delivered out of order.
		Seq  uint64
		View View
		Err  error
		At   time.Time
	}

	Listener func(Event)
)

// ShowResult reports whether the result region is visible rather than the initial
// message, the loading indicator or the error region.
func (v View) ShowResult() bool {
	return v.Error == "" && !v.Loading && v.Story != ""
}

// ShowActions reports whether the story actions are offered. They stay next to an error
// so the failed action can be tried again.
func (v View) ShowActions() bool {
	return !v.Loading && v.Story != ""
}

func (v View) ShowAudio() bool {
	return v.ShowResult() && v.AudioURL != "" && !v.Narrating
}

func (c *Controller) viewLocked() View {
	v := View{
		State:              c.stateLocked(),
		GenerateEnabled:    c.session.SelectedImage != nil && c.storyReq == 0,
		Loading:            c.storyReq != 0,
		Story:              c.session.StoryText,
		Paragraphs:         Paragraphs(c.session.StoryText),
		Analysis:           c.session.AnalysisText,
		StoryID:            c.session.StoryID,
		AudioURL:           c.session.AudioURL,
		AudioPlaying:       c.playing,
		NarrationAvailable: c.speech != nil,
		Narrating:          c.narrateReq != 0,
		CopyConfirmed:      c.copyConfirmed,
		Error:              c.errMsg,
	}
	if img := c.session.SelectedImage; img != nil {
		v.ImageName = img.Name
		v.PreviewURL = img.PreviewURL()
	}
	if c.session.StoryID != "" {
		v.StoryLink = c.backend.StoryURL(c.session.StoryID)
	}
	return v
}

// eventLocked captures the current view and returns a function that delivers it to the
// listeners once the lock is released.
func (c *Controller) eventLocked(kind EventKind, err error) func() {
	c.eventSeq++
	ev := Event{
		Kind: kind,
		Seq:  c.eventSeq,
		View: c.viewLocked(),
		Err:  err,
		At:   time.Now(),
	}
	ids := slices.Sorted(maps.Keys(c.listeners))
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, c.listeners[id])
	}

	return func() {
		for _, l := range listeners {
			l(ev)
		}
	}
}
