package story

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const DefaultCopyConfirmDelay = 2 * time.Second

// ErrSuperseded is returned when a response arrives after a reset, a new image or a
// newer story made it irrelevant. The response is dropped.
var ErrSuperseded = errors.New("story: response superseded")

type (
	Attachment struct {
		Filename    string
		ContentType string
		Body        io.ReadCloser
	}

	Option func(*Controller)

	// Controller is the interaction state machine behind the story page. Every user
	// action is one method; the mutex is held only around transitions so responses are
	// applied one at a time and never while a request is outstanding.
	Controller struct {
		backend          Backend
		speech           SpeechBackend
		logger           *slog.Logger
		copyConfirmDelay time.Duration

		mu            sync.Mutex
		session       Session
		errMsg        string
		storyOp       State
		storyReq      uint64
		narrateReq    uint64
		seq           uint64
		playing       bool
		copyConfirmed bool
		copyGen       uint64
		copyTimer     *time.Timer
		listeners     map[int]Listener
		nextListener  int
		eventSeq      uint64
	}
)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithCopyConfirmDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.copyConfirmDelay = d
	}
}

// WithSpeech layers narration on top of a backend that does not provide it itself.
func WithSpeech(speech SpeechBackend) Option {
	return func(c *Controller) {
		c.speech = speech
	}
}

func NewController(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:          backend,
		logger:           slog.Default(),
		copyConfirmDelay: DefaultCopyConfirmDelay,
		listeners:        make(map[int]Listener),
	}
	if speech, ok := backend.(SpeechBackend); ok {
		c.speech = speech
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) SelectImage(img *Image) error {
	c.mu.Lock()
	if err := ValidateImage(img); err != nil {
		notify := c.failLocked(err)
		c.mu.Unlock()
		notify()
		return err
	}

	c.session.SelectedImage = img
	c.session.clearStory()
	c.errMsg = ""
	c.playing = false
	c.storyReq = 0
	c.narrateReq = 0
	c.cancelCopyLocked()
	notify := c.eventLocked(EventImageSelected, nil)
	c.mu.Unlock()
	notify()

	c.logger.Info("Image selected", slog.String("name", img.Name), slog.String("type", img.ContentType), slog.Int("size", len(img.Data)))
	return nil
}

func (c *Controller) Generate(ctx context.Context) error {
	c.mu.Lock()
	img := c.session.SelectedImage
	if img == nil {
		err := &ValidationError{Message: noImageMessage}
		notify := c.failLocked(err)
		c.mu.Unlock()
		notify()
		return err
	}
	token, notify, err := c.startStoryLocked(Generating, EventGenerateStarted)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	notify()

	res, err := c.backend.Upload(ctx, img)

	c.mu.Lock()
	if c.storyReq != token {
		c.mu.Unlock()
		c.logger.Info("Dropping superseded generate response")
		return ErrSuperseded
	}
	c.storyReq = 0
	if err != nil {
		rerr := asRequestError("generate", err)
		notify = c.failLocked(rerr)
		c.mu.Unlock()
		notify()
		c.logger.Error("Failed to generate story", slog.String("error", rerr.Error()))
		return rerr
	}

	c.session.StoryText = res.Story
	c.session.AnalysisText = res.Analysis
	c.session.StoryID = res.StoryID
	c.storyChangedLocked()
	notify = c.eventLocked(EventStoryGenerated, nil)
	c.mu.Unlock()
	notify()

	c.logger.Info("Story generated", slog.String("story_id", res.StoryID))
	return nil
}

func (c *Controller) Regenerate(ctx context.Context, directive string) error {
	c.mu.Lock()
	token, notify, err := c.startStoryLocked(Regenerating, EventRegenerateStarted)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	notify()

	res, err := c.backend.Regenerate(ctx, directive)

	c.mu.Lock()
	if c.storyReq != token {
		c.mu.Unlock()
		c.logger.Info("Dropping superseded regenerate response")
		return ErrSuperseded
	}
	c.storyReq = 0
	if err != nil {
		rerr := asRequestError("regenerate", err)
		notify = c.failLocked(rerr)
		c.mu.Unlock()
		notify()
		c.logger.Error("Failed to regenerate story", slog.String("error", rerr.Error()))
		return rerr
	}

	c.session.StoryText = res.Story
	c.session.StoryID = res.StoryID
	c.storyChangedLocked()
	notify = c.eventLocked(EventStoryRegenerated, nil)
	c.mu.Unlock()
	notify()

	c.logger.Info("Story regenerated", slog.String("story_id", res.StoryID), slog.Bool("directive", directive != ""))
	return nil
}

// Narrate asks for narration of the current story. It does nothing when there is no story.
func (c *Controller) Narrate(ctx context.Context) error {
	c.mu.Lock()
	if c.session.StoryText == "" {
		c.mu.Unlock()
		return nil
	}
	if c.speech == nil {
		c.mu.Unlock()
		return ErrNarrationUnavailable
	}
	if c.narrateReq != 0 {
		c.mu.Unlock()
		return ErrInFlight
	}
	token := c.nextTokenLocked()
	c.narrateReq = token
	c.errMsg = ""
	c.playing = false
	text, storyID := c.session.StoryText, c.session.StoryID
	notify := c.eventLocked(EventNarrationStarted, nil)
	c.mu.Unlock()
	notify()

	audioURL, err := c.speech.GenerateSpeech(ctx, text, storyID)

	c.mu.Lock()
	if c.narrateReq != token {
		c.mu.Unlock()
		c.logger.Info("Dropping superseded narration response")
		return ErrSuperseded
	}
	c.narrateReq = 0
	if err != nil {
		rerr := asRequestError("narrate", err)
		notify = c.failLocked(rerr)
		c.mu.Unlock()
		notify()
		c.logger.Error("Failed to generate speech", slog.String("error", rerr.Error()))
		return rerr
	}

	c.session.AudioURL = audioURL
	c.playing = true
	c.errMsg = ""
	notify = c.eventLocked(EventNarrationReady, nil)
	c.mu.Unlock()
	notify()

	c.logger.Info("Narration ready", slog.String("story_id", storyID), slog.String("audio_url", audioURL))
	return nil
}

// DownloadStory builds the story text file locally.
func (c *Controller) DownloadStory() (*Attachment, error) {
	c.mu.Lock()
	text := c.session.StoryText
	c.mu.Unlock()

	if text == "" {
		return nil, ErrNoStory
	}

	return &Attachment{
		Filename:    "generated-story.txt",
		ContentType: "text/plain; charset=utf-8",
		Body:        io.NopCloser(strings.NewReader(text)),
	}, nil
}

func (c *Controller) CopyStory(ctx context.Context, clipboard Clipboard) error {
	c.mu.Lock()
	text := c.session.StoryText
	c.mu.Unlock()

	if text == "" {
		return ErrNoStory
	}

	if err := clipboard.WriteText(ctx, text); err != nil {
		c.mu.Lock()
		c.errMsg = clipboardErrorMessage
		notify := c.eventLocked(EventFailed, err)
		c.mu.Unlock()
		notify()
		return fmt.Errorf("copy story: %w", err)
	}

	c.mu.Lock()
	c.cancelCopyLocked()
	c.copyConfirmed = true
	gen := c.copyGen
	c.copyTimer = time.AfterFunc(c.copyConfirmDelay, func() { c.revertCopy(gen) })
	notify := c.eventLocked(EventCopyConfirmed, nil)
	c.mu.Unlock()
	notify()
	return nil
}

// DownloadAudio fetches the narration that was already generated for the story.
func (c *Controller) DownloadAudio(ctx context.Context) (*Attachment, error) {
	c.mu.Lock()
	audioURL := c.session.AudioURL
	c.mu.Unlock()

	if audioURL == "" {
		return nil, ErrNoAudio
	}
	if c.speech == nil {
		return nil, ErrNarrationUnavailable
	}

	body, err := c.speech.FetchAudio(ctx, audioURL)
	if err != nil {
		rerr := asRequestError("download audio", err)
		c.mu.Lock()
		notify := c.failLocked(rerr)
		c.mu.Unlock()
		notify()
		return nil, rerr
	}

	return &Attachment{
		Filename:    "story-narration.mp3",
		ContentType: "audio/mpeg",
		Body:        body,
	}, nil
}

// Reset forgets the image, the story and its audio and stops playback.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.session = Session{}
	c.errMsg = ""
	c.playing = false
	c.storyReq = 0
	c.narrateReq = 0
	c.cancelCopyLocked()
	notify := c.eventLocked(EventReset, nil)
	c.mu.Unlock()
	notify()
}

func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Subscribe registers l for every transition. Listeners run outside the controller lock.
func (c *Controller) Subscribe(l Listener) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextListener
	c.nextListener++
	c.listeners[id] = l

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Controller) startStoryLocked(op State, kind EventKind) (uint64, func(), error) {
	if c.storyReq != 0 {
		return 0, nil, ErrInFlight
	}
	token := c.nextTokenLocked()
	c.storyReq = token
	c.storyOp = op
	c.errMsg = ""
	return token, c.eventLocked(kind, nil), nil
}

// storyChangedLocked drops narration for the previous story, including one in flight.
func (c *Controller) storyChangedLocked() {
	c.session.AudioURL = ""
	c.playing = false
	c.narrateReq = 0
	c.errMsg = ""
}

func (c *Controller) failLocked(err error) func() {
	c.errMsg = UserMessage(err)
	return c.eventLocked(EventFailed, err)
}

func (c *Controller) nextTokenLocked() uint64 {
	c.seq++
	return c.seq
}

func (c *Controller) cancelCopyLocked() {
	c.copyGen++
	c.copyConfirmed = false
	if c.copyTimer != nil {
		c.copyTimer.Stop()
		c.copyTimer = nil
	}
}

func (c *Controller) revertCopy(gen uint64) {
	c.mu.Lock()
	if gen != c.copyGen || !c.copyConfirmed {
		c.mu.Unlock()
		return
	}
	c.copyConfirmed = false
	c.copyTimer = nil
	notify := c.eventLocked(EventCopyReverted, nil)
	c.mu.Unlock()
	notify()
}

func (c *Controller) stateLocked() State {
	switch {
	case c.storyReq != 0:
		return c.storyOp
	case c.narrateReq != 0:
		return NarrationPending
	case c.errMsg != "":
		return ErrorShown
	case c.session.StoryText != "":
		return StoryReady
	case c.session.SelectedImage != nil:
		return ImageSelected
	default:
		return Idle
	}
}

func asRequestError(op string, err error) *RequestError {
	var rerr *RequestError
	if errors.As(err, &rerr) {
		return rerr
	}
	return transportError(op, err)
}
