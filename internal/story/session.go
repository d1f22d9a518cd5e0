package story

type State int

const (
	Idle State = iota
	ImageSelected
	Generating
	StoryReady
	Regenerating
	NarrationPending
	ErrorShown
)

var stateNames = [...]string{
	Idle:             "idle",
	ImageSelected:    "image_selected",
	Generating:       "generating",
	StoryReady:       "story_ready",
	Regenerating:     "regenerating",
	NarrationPending: "narration_pending",
	ErrorShown:       "error_shown",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Session is everything the controller remembers between actions. It lives in memory
// only and is wiped by Reset.
type Session struct {
	SelectedImage *Image
	StoryText     string
	AnalysisText  string
	StoryID       string
	AudioURL      string
}

func (s *Session) clearStory() {
	s.StoryText = ""
	s.AnalysisText = ""
	s.StoryID = ""
	s.AudioURL = ""
}
