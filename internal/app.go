package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"storyfront/internal/story"
)

type App struct {
	Config      *AppConfig
	Controllers *Registry
	Upgrader    *websocket.Upgrader
	Templates   *template.Template
	Events      EventSink
	limiter     *rate.Limiter
}

var TemplateFuncs = template.FuncMap{
	// safeURL marks the data URL of a local preview as trusted.
	"safeURL": func(s string) template.URL {
		return template.URL(s)
	},
}

func NewApp(c *AppConfig) (*App, error) {
	templates, err := template.New("").Funcs(TemplateFuncs).ParseGlob(c.TemplateGLOB)
	if err != nil {
		return nil, err
	}

	var events EventSink = NopSink{}
	if len(c.Kafka.Brokers) > 0 {
		producer, err := NewProducer(c.Kafka)
		if err != nil {
			return nil, err
		}
		events = producer
	}

	limit := rate.Inf
	if c.Backend.RateLimit > 0 {
		limit = rate.Limit(c.Backend.RateLimit)
	}

	app := &App{
		Config: c,
		Upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		Templates: templates,
		Events:    events,
		limiter:   rate.NewLimiter(limit, max(c.Backend.RateBurst, 1)),
	}
	app.Controllers = NewRegistry(c.SessionTTL, app.NewController)

	return app, nil
}

func (a *App) Close() {
	if err := a.Events.Close(); err != nil {
		slog.Error("Failed to close event sink", slog.String("error", err.Error()))
	}
}

// NewController builds the controller for one browser session. Each gets its own backend
// client so the story server sees one cookie session per browser.
func (a *App) NewController(id string) (*story.Controller, error) {
	client, err := story.NewClient(story.ClientConfig{
		BaseURL: a.Config.Backend.URL,
		Timeout: a.Config.Backend.Timeout,
		Limiter: a.limiter,
	})
	if err != nil {
		return nil, err
	}

	ctl := story.NewController(client,
		story.WithLogger(slog.With(slog.String("session", id))),
		story.WithCopyConfirmDelay(a.Config.CopyConfirmDelay),
	)
	ctl.Subscribe(a.publish(id))
	return ctl, nil
}

func (a *App) publish(id string) story.Listener {
	return func(ev story.Event) {
		event := StoryEvent{
			Session: id,
			Kind:    string(ev.Kind),
			State:   ev.View.State.String(),
			StoryID: ev.View.StoryID,
			At:      ev.At,
		}
		if ev.Err != nil {
			event.Error = story.UserMessage(ev.Err)
		}

		if err := a.Events.SendStoryEvent(&event); err != nil {
			slog.Error("Failed to publish story event", slog.String("kind", event.Kind), slog.String("error", err.Error()))
		}
	}
}

func (a *App) Health(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Message: fmt.Sprintf("ok, %d sessions", a.Controllers.Len())})
}

func (a *App) Home(c *gin.Context) {
	ctl, ok := a.controller(c)
	if !ok {
		return
	}
	c.HTML(http.StatusOK, "index.html", Panel{View: ctl.View()})
}

func (a *App) SelectImage(c *gin.Context) {
	ctl, ok := a.controller(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, a.Config.MaxUploadBytes)
	img, err := readImage(c)
	if err != nil {
		slog.Info("Image upload rejected", slog.String("error", err.Error()))
	}

	a.RenderPanel(c, ctl, ctl.SelectImage(img))
}

func (a *App) ResetImage(c *gin.Context) {
	ctl, ok := a.controller(c)
	if !ok {
		return
	}
	ctl.Reset()
	a.RenderPanel(c, ctl, nil)
}

func (a *App) Generate(c *gin.Context) {
	ctl, ok := a.controller(c)
	if !ok {
		return
	}
	a.RenderPanel(c, ctl, ctl.Generate(c.Request.Context()))
}

func (a *App) Regenerate(c *gin.Context) {
	ctl, ok := a.controller(c)
	if !ok {
		return
	}
	a.RenderPanel(c, ctl, ctl.Regenerate(c.Request.Context(), c.PostForm("prompt")))
}

func (a *App) Narrate(c *gin.Context) {
	ctl, ok := a.controller(c)
	if !ok {
		return
	}
	err := ctl.Narrate(c.Request.Context())
	view := ctl.View()
	c.HTML(statusFor(err), "panel.html", Panel{View: view, Autoplay: err == nil && view.AudioPlaying})
}

// Copy hands the story to the page through an htmx event. The page owns the clipboard
// and reports the outcome to CopyDone or CopyFailed.
func (a *App) Copy(c *gin.Context) {
	ctl, ok := a.controller(c)
	if !ok {
		return
	}

	text := ctl.Session().StoryText
	if text == "" {
		c.Status(http.StatusNoContent)
		return
	}

	trigger, err := json.Marshal(map[string]any{"copy-story": map[string]string{"text": text}})
	if err != nil {
		AbortWithInternalError(c, err)
		return
	}
	c.Header("HX-Trigger", string(trigger))
	c.Status(http.StatusNoContent)
}

func (a *App) CopyDone(c *gin.Context) {
	a.copied(c, nil)
}

func (a *App) CopyFailed(c *gin.Context) {
	reason := c.PostForm("reason")
	if reason == "" {
		reason = "clipboard write rejected"
	}
	a.copied(c, errors.New(reason))
}

// copied replays the page's clipboard outcome through the controller.
func (a *App) copied(c *gin.Context, outcome error) {
	ctl, ok := a.controller(c)
	if !ok {
		return
	}

	err := ctl.CopyStory(c.Request.Context(), story.ClipboardFunc(func(context.Context, string) error {
		return outcome
	}))
	if errors.Is(err, story.ErrNoStory) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		slog.Info("Browser clipboard write failed", slog.String("error", err.Error()))
	}
	a.RenderPanel(c, ctl, err)
}

func (a *App) DownloadStory(c *gin.Context) {
	ctl, ok := a.controller(c)
	if !ok {
		return
	}

	att, err := ctl.DownloadStory()
	if errors.Is(err, story.ErrNoStory) {
		c.Status(http.StatusNoContent)
		return
	}
	sendAttachment(c, att, false)
}

func (a *App) DownloadAudio(c *gin.Context) {
	ctl, ok := a.controller(c)
	if !ok {
		return
	}

	att, err := ctl.DownloadAudio(c.Request.Context())
	if errors.Is(err, story.ErrNoAudio) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		AbortWithHTML(c, http.StatusBadGateway, errors.New(story.UserMessage(err)))
		return
	}
	sendAttachment(c, att, c.Query("inline") != "")
}

// Stream pushes the panel to the page after every transition of its controller.
func (a *App) Stream(c *gin.Context) {
	ctl, ok := a.controller(c)
	if !ok {
		return
	}

	conn, err := a.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("Failed to upgrade to ws", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// latest is the view of the newest event. Autoplay survives coalescing until one
	// push has carried it.
	var (
		mu     sync.Mutex
		seq    uint64
		latest = Panel{View: ctl.View()}
	)
	changed := make(chan struct{}, 1)
	cancel := ctl.Subscribe(func(ev story.Event) {
		mu.Lock()
		if ev.Seq > seq {
			seq = ev.Seq
			latest.View = ev.View
		}
		if ev.Kind == story.EventNarrationReady {
			latest.Autoplay = true
		}
		mu.Unlock()

		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		mu.Lock()
		data := latest
		latest.Autoplay = false
		mu.Unlock()

		panel, err := a.RenderTemplate("panel.html", data)
		if err != nil {
			a.HandleWebsocketError("Failed to render template", conn, err)
			return
		}

		if err = conn.WriteMessage(websocket.TextMessage, panel); err != nil {
			slog.Error("Failed to write to ws", slog.String("error", err.Error()))
			return
		}

		select {
		case <-changed:
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// RenderPanel answers an action with the refreshed panel. Surfaced errors are part of the
// panel; the status code tells scripted clients what happened.
func (a *App) RenderPanel(c *gin.Context, ctl *story.Controller, err error) {
	c.HTML(statusFor(err), "panel.html", Panel{View: ctl.View()})
}

func (a *App) HandleWebsocketError(msg string, conn *websocket.Conn, err error) {
	slog.Error(msg, slog.String("error", err.Error()))
	template, _ := a.RenderTemplate("error.html", err.Error())

	conn.WriteMessage(websocket.TextMessage, template)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, msg), time.Now().Add(time.Second))
}

func (a *App) RenderTemplate(name string, data any) ([]byte, error) {
	var buffer bytes.Buffer
	err := a.Templates.ExecuteTemplate(&buffer, name, data)
	return buffer.Bytes(), err
}

func (a *App) controller(c *gin.Context) (*story.Controller, bool) {
	id, err := ControllerID(c)
	if err != nil {
		AbortWithInternalError(c, err)
		return nil, false
	}

	ctl, err := a.Controllers.Get(id)
	if err != nil {
		AbortWithInternalError(c, err)
		return nil, false
	}
	return ctl, true
}

// readImage returns nil when the form carries no file so the controller reports it.
func readImage(c *gin.Context) (*story.Image, error) {
	header, err := c.FormFile("image")
	if err != nil {
		return nil, err
	}

	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	return &story.Image{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func sendAttachment(c *gin.Context, att *story.Attachment, inline bool) {
	defer att.Body.Close()

	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	c.DataFromReader(http.StatusOK, -1, att.ContentType, att.Body, map[string]string{
		"Content-Disposition": mime.FormatMediaType(disposition, map[string]string{"filename": att.Filename}),
	})
}

func statusFor(err error) int {
	var verr *story.ValidationError
	switch {
	case err == nil, errors.Is(err, story.ErrSuperseded):
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, story.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, story.ErrNarrationUnavailable):
		return http.StatusNotImplemented
	default:
		return http.StatusOK
	}
}

func AbortWithHTML(c *gin.Context, code int, err error) {
	c.Abort()
	c.Error(err)
	c.HTML(code, "error.html", err.Error())
}

func AbortWithInternalError(c *gin.Context, err error) {
	AbortWithHTML(c, http.StatusInternalServerError, err)
}
