package story

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type (
	ClientConfig struct {
		BaseURL string
		// Timeout of zero waits for the backend indefinitely.
		Timeout time.Duration
		// Limiter is shared between clients to pace calls to one backend. Nil means unlimited.
		Limiter *rate.Limiter
	}

	// Client talks to the story server. It owns a cookie jar because the server keeps
	// the last uploaded image in its session for /regenerate.
	Client struct {
		baseURL *url.URL
		http    *http.Client
		limiter *rate.Limiter
	}
)

var _ interface {
	Backend
	SpeechBackend
} = (*Client)(nil)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", cfg.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: base,
		http:    &http.Client{Jar: jar, Timeout: cfg.Timeout},
		limiter: cfg.Limiter,
	}, nil
}

func (c *Client) Upload(ctx context.Context, img *Image) (*GenerateResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, quoteEscaper.Replace(img.Name)))
	header.Set("Content-Type", img.ContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, transportError("generate", err)
	}
	if _, err = part.Write(img.Data); err != nil {
		return nil, transportError("generate", err)
	}
	if err = writer.Close(); err != nil {
		return nil, transportError("generate", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("upload"), &body)
	if err != nil {
		return nil, transportError("generate", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.call(req, "generate", generateFailedMessage)
	if err != nil {
		return nil, err
	}
	if resp.Story == "" || resp.StoryID == "" {
		return nil, applicationError("generate", "", generateFailedMessage)
	}

	return &GenerateResult{
		Story:    resp.Story,
		Analysis: resp.ImageAnalysis,
		StoryID:  string(resp.StoryID),
	}, nil
}

func (c *Client) Regenerate(ctx context.Context, directive string) (*RegenerateResult, error) {
	req, err := c.jsonRequest(ctx, "regenerate", RegenerateRequest{Prompt: directive})
	if err != nil {
		return nil, transportError("regenerate", err)
	}

	resp, err := c.call(req, "regenerate", regenerateFailMessage)
	if err != nil {
		return nil, err
	}
	if resp.Story == "" || resp.StoryID == "" {
		return nil, applicationError("regenerate", "", regenerateFailMessage)
	}

	return &RegenerateResult{Story: resp.Story, StoryID: string(resp.StoryID)}, nil
}

func (c *Client) GenerateSpeech(ctx context.Context, text, storyID string) (string, error) {
	payload := SpeechRequest{Text: text}
	if storyID != "" {
		payload.StoryID = &storyID
	}

	req, err := c.jsonRequest(ctx, "generate-speech", payload)
	if err != nil {
		return "", transportError("narrate", err)
	}

	resp, err := c.call(req, "narrate", narrationFailedMessage)
	if err != nil {
		return "", err
	}
	if resp.AudioPath == "" {
		return "", applicationError("narrate", "", narrationFailedMessage)
	}

	return c.AudioURL(resp.AudioPath), nil
}

func (c *Client) FetchAudio(ctx context.Context, audioURL string) (io.ReadCloser, error) {
	if err := c.wait(ctx); err != nil {
		return nil, transportError("download audio", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, transportError("download audio", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError("download audio", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, transportError("download audio", fmt.Errorf("unexpected status %s", resp.Status))
	}

	return resp.Body, nil
}

// AudioURL resolves an audioPath from /generate-speech to where the audio is served.
func (c *Client) AudioURL(audioPath string) string {
	return c.baseURL.JoinPath("static", audioPath).String()
}

func (c *Client) StoryURL(id string) string {
	return c.baseURL.JoinPath("stories", id).String()
}

func (c *Client) endpoint(name string) string {
	return c.baseURL.JoinPath(name).String()
}

func (c *Client) jsonRequest(ctx context.Context, name string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(name), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// call sends req and decodes the JSON envelope. A body that is not JSON is a transport
// failure, success:false is an application failure regardless of status code.
func (c *Client) call(req *http.Request, op, fallback string) (*Response, error) {
	if err := c.wait(req.Context()); err != nil {
		return nil, transportError(op, err)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer httpResp.Body.Close()

	var resp Response
	if err = json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, transportError(op, fmt.Errorf("decode %s response (%s): %w", op, httpResp.Status, err))
	}

	if !resp.Success || httpResp.StatusCode >= http.StatusBadRequest {
		return nil, applicationError(op, resp.Error, fallback)
	}

	return &resp, nil
}
