package internal

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyfront/internal/story"
	"storyfront/internal/stub"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testFront struct {
	app    *App
	server *httptest.Server
	client *http.Client
	stub   *stub.Server

	backendURL string
}

func newTestFront(t *testing.T) *testFront {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backendStub := stub.NewServer()
	backend := httptest.NewServer(backendStub.Router([]byte("backend-secret")))
	t.Cleanup(backend.Close)

	app, err := NewApp(&AppConfig{
		TemplateGLOB:     "../templates/*.html",
		CookieSecret:     "front-secret",
		MaxUploadBytes:   1 << 20,
		SessionTTL:       time.Hour,
		CopyConfirmDelay: 50 * time.Millisecond,
		Backend: BackendConfig{
			URL:       backend.URL,
			Timeout:   5 * time.Second,
			RateBurst: 1,
		},
	})
	require.NoError(t, err)
	t.Cleanup(app.Close)

	server := httptest.NewServer(BuildRouter(app))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testFront{
		app:    app,
		server: server,
		client: &http.Client{Jar: jar},
		stub:   backendStub,

		backendURL: backend.URL,
	}
}

func (f *testFront) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := f.client.PostForm(f.server.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (f *testFront) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := f.client.Get(f.server.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (f *testFront) upload(t *testing.T, name, contentType string, data []byte) (*http.Response, string) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="`+name+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp, err := f.client.Post(f.server.URL+"/image", writer.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestApp_Health(t *testing.T) {
	f := newTestFront(t)

	resp, body := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health Response
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "ok, 0 sessions", health.Message)
}

func TestApp_HomeShowsInitialPanel(t *testing.T) {
	f := newTestFront(t)

	resp, body := f.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="panel"`)
	assert.Contains(t, body, `id="initial-message"`)
	assert.Contains(t, body, `id="dropzone"`)
	assert.Regexp(t, `id="generate-btn"[^>]*disabled`, body)
	assert.Equal(t, 1, f.app.Controllers.Len())
}

func TestApp_FullFlow(t *testing.T) {
	f := newTestFront(t)

	resp, body := f.upload(t, "harbor.png", "image/png", pngHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="image-preview"`)
	assert.Contains(t, body, "data:image/png;base64,")
	assert.NotRegexp(t, `id="generate-btn"[^>]*disabled`, body)

	resp, body = f.post(t, "/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<p>Nobody remembered who first found harbor.</p>")
	assert.Contains(t, body, "<p>It waited in the light until someone looked closely enough.</p>")
	assert.Contains(t, body, f.backendURL+"/stories/1")
	assert.Contains(t, body, `id="narrate-btn"`)
	assert.Equal(t, 1, f.stub.Calls("/upload"))

	resp, body = f.post(t, "/regenerate", url.Values{"prompt": {"set it in space"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "set it in space")
	assert.Equal(t, 1, f.stub.Calls("/regenerate"))

	resp, body = f.get(t, "/download/story")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename=generated-story.txt`)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
	assert.Contains(t, body, "set it in space")

	resp, body = f.post(t, "/narrate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="audio-player"`)
	assert.Contains(t, body, "autoplay")

	resp, body = f.get(t, "/download/audio")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "story-narration.mp3")
	assert.True(t, strings.HasPrefix(body, "ID3"))

	resp, _ = f.get(t, "/download/audio?inline=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Disposition"), "inline"))

	resp, _ = f.post(t, "/copy", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	var trigger map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(resp.Header.Get("HX-Trigger")), &trigger))
	assert.Contains(t, trigger["copy-story"]["text"], "set it in space")

	resp, body = f.post(t, "/copy/done", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Copied!")

	resp, body = f.post(t, "/image/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="initial-message"`)
	assert.Contains(t, body, `id="dropzone"`)
}

func TestApp_GenerateWithoutImage(t *testing.T) {
	f := newTestFront(t)

	resp, body := f.post(t, "/generate", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Please select an image first")
	assert.Equal(t, 0, f.stub.Calls("/upload"))
}

func TestApp_RejectsUnsupportedImage(t *testing.T) {
	f := newTestFront(t)

	resp, body := f.upload(t, "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, `id="error-message"`)
	assert.Contains(t, body, `id="dropzone"`)
}

func TestApp_UploadWithoutFile(t *testing.T) {
	f := newTestFront(t)

	resp, _ := f.post(t, "/image", url.Values{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApp_LocalActionsWithoutStory(t *testing.T) {
	f := newTestFront(t)

	resp, _ := f.get(t, "/download/story")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.get(t, "/download/audio")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.post(t, "/copy", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("HX-Trigger"))

	resp, _ = f.post(t, "/copy/done", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := f.post(t, "/narrate", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="initial-message"`)
	assert.Equal(t, 0, f.stub.Calls("/generate-speech"))
}

func TestApp_SessionsAreIsolated(t *testing.T) {
	f := newTestFront(t)

	resp, _ := f.upload(t, "harbor.png", "image/png", pngHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.post(t, "/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	other := &testFront{app: f.app, server: f.server, client: &http.Client{Jar: jar}, stub: f.stub}

	resp, body := other.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="initial-message"`)
	assert.NotContains(t, body, "harbor")
	assert.Equal(t, 2, f.app.Controllers.Len())
}

func TestApp_StreamPushesPanel(t *testing.T) {
	f := newTestFront(t)

	// The first request issues the session cookie the websocket handshake carries.
	resp, _ := f.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dialer := websocket.Dialer{Jar: f.client.Jar}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(f.server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, first, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(first), `id="panel"`)
	assert.Contains(t, string(first), `id="initial-message"`)

	resp, _ = f.upload(t, "harbor.png", "image/png", pngHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, update, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(update), `id="image-preview"`)
}

func (f *testFront) story(t *testing.T) {
	t.Helper()
	resp, _ := f.upload(t, "harbor.png", "image/png", pngHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := f.post(t, "/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "harbor")
}

func TestApp_NarrationAutoplaysOnce(t *testing.T) {
	f := newTestFront(t)
	f.story(t)

	_, body := f.post(t, "/narrate", nil)
	assert.Regexp(t, `<audio id="audio-player"[^>]*autoplay`, body)

	resp, _ := f.post(t, "/copy", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, body = f.post(t, "/copy/done", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="audio-player"`)
	assert.NotContains(t, body, "autoplay")

	_, body = f.get(t, "/")
	assert.Contains(t, body, `id="audio-player"`)
	assert.NotContains(t, body, "autoplay")
}

func TestApp_FailuresKeepStoryActions(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		form   url.Values
		breaks bool
		server string
		want   string
	}{
		{name: "narrate server message", path: "/narrate", server: "TTS quota exceeded", want: "TTS quota exceeded"},
		{name: "narrate fallback", path: "/narrate", want: "An error occurred while generating speech"},
		{name: "narrate bad gateway", path: "/narrate", breaks: true, want: "Network error. Please try again later."},
		{name: "regenerate server message", path: "/regenerate", form: url.Values{"prompt": {"darker"}}, server: "No image found. Please upload an image first.", want: "No image found. Please upload an image first."},
		{name: "regenerate fallback", path: "/regenerate", want: "An error occurred while regenerating the story"},
		{name: "regenerate bad gateway", path: "/regenerate", breaks: true, want: "Network error. Please try again later."},
	}

	backendPath := map[string]string{"/narrate": "/generate-speech", "/regenerate": "/regenerate"}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newTestFront(t)
			f.story(t)

			if test.breaks {
				f.stub.Break(backendPath[test.path])
			} else {
				f.stub.Fail(backendPath[test.path], test.server)
			}

			resp, body := f.post(t, test.path, test.form)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, body, `id="error-message"`)
			assert.Contains(t, body, test.want)
			assert.NotContains(t, body, `id="story-content"`)
			assert.Contains(t, body, `id="regenerate-btn"`)
			assert.Contains(t, body, `id="prompt-input"`)
			assert.Contains(t, body, `id="narrate-btn"`)

			resp, body = f.get(t, "/download/story")
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, body, "Nobody remembered who first found harbor.")

			f.stub.Recover(backendPath[test.path])
			resp, body = f.post(t, test.path, test.form)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.NotContains(t, body, `id="error-message"`)
			assert.Contains(t, body, `id="story-content"`)
		})
	}
}

func TestApp_GenerateFailureAllowsRetry(t *testing.T) {
	f := newTestFront(t)
	f.stub.Fail("/upload", "Invalid image format. Please upload a JPEG, PNG, or GIF.")

	resp, _ := f.upload(t, "harbor.png", "image/png", pngHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.post(t, "/generate", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Invalid image format. Please upload a JPEG, PNG, or GIF.")
	assert.NotRegexp(t, `id="generate-btn"[^>]*disabled`, body)
	assert.NotContains(t, body, `id="initial-message"`)

	f.stub.Recover("/upload")
	_, body = f.post(t, "/generate", nil)
	assert.Contains(t, body, "Nobody remembered who first found harbor.")
}

func TestApp_CopyFailedShowsError(t *testing.T) {
	f := newTestFront(t)
	f.story(t)

	resp, body := f.post(t, "/copy/failed", url.Values{"reason": {"NotAllowedError: Write permission denied."}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Failed to copy text to clipboard")
	assert.NotContains(t, body, "Copied!")
	assert.Contains(t, body, `id="copy-btn"`)
}

func TestApp_StreamAutoplaysFreshNarration(t *testing.T) {
	f := newTestFront(t)
	f.story(t)

	dialer := websocket.Dialer{Jar: f.client.Jar}
	conn, _, err := dialer.Dial("ws"+strings.TrimPrefix(f.server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, first, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.NotContains(t, string(first), "autoplay")

	resp, _ := f.post(t, "/narrate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// narration_started and narration_ready may be coalesced into one push.
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		if strings.Contains(string(msg), `id="audio-player"`) {
			assert.Contains(t, string(msg), "autoplay")
			break
		}
	}

	resp, _ = f.post(t, "/copy/done", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `id="audio-player"`)
	assert.NotContains(t, string(msg), "autoplay")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, http.StatusOK},
		{"validation", &story.ValidationError{Message: "Please select an image first"}, http.StatusBadRequest},
		{"in flight", story.ErrInFlight, http.StatusConflict},
		{"no speech", story.ErrNarrationUnavailable, http.StatusNotImplemented},
		{"superseded", story.ErrSuperseded, http.StatusOK},
		{"request failed", io.ErrUnexpectedEOF, http.StatusOK},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, statusFor(test.err))
		})
	}
}
