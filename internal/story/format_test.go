package story

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParagraphs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "two lines", text: "Line1\nLine2", want: []string{"Line1", "Line2"}},
		{name: "blank lines dropped", text: "One\n\n   \nTwo\n", want: []string{"One", "Two"}},
		{name: "empty", text: "", want: nil},
		{name: "only whitespace", text: " \n\t\n", want: nil},
		{name: "order kept", text: "c\na\nb", want: []string{"c", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Paragraphs(tt.text))
		})
	}
}

func TestLoadImage_SniffsContentType(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		invalid bool
	}{
		{name: "png", data: "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR", want: "image/png"},
		{name: "gif", data: "GIF89a\x01\x00\x01\x00", want: "image/gif"},
		{name: "jpeg", data: "\xff\xd8\xff\xe0\x00\x10JFIF\x00", want: "image/jpeg"},
		{name: "text", data: "just some words", invalid: true},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".bin")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0o600))

			img, err := LoadImage(path)
			require.NoError(t, err)
			assert.Equal(t, tt.name+".bin", img.Name)

			if tt.invalid {
				assert.Error(t, ValidateImage(img))
				return
			}
			assert.Equal(t, tt.want, img.ContentType)
			assert.NoError(t, ValidateImage(img))
		})
	}
}

func TestLoadImage_MissingFile(t *testing.T) {
	_, err := LoadImage(filepath.Join(t.TempDir(), "nope.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWireID(t *testing.T) {
	tests := []struct {
		raw  string
		want WireID
	}{
		{raw: `{"storyId": 42}`, want: "42"},
		{raw: `{"storyId": "abc"}`, want: "abc"},
		{raw: `{"storyId": null}`, want: ""},
		{raw: `{}`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var resp Response
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &resp))
			assert.Equal(t, tt.want, resp.StoryID)
		})
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, noImageMessage, UserMessage(&ValidationError{Message: noImageMessage}))
	assert.Equal(t, networkErrorMessage, UserMessage(transportError("generate", os.ErrDeadlineExceeded)))
	assert.Equal(t, "boom", UserMessage(applicationError("generate", "boom", generateFailedMessage)))
	assert.Equal(t, regenerateFailMessage, UserMessage(applicationError("regenerate", "", regenerateFailMessage)))
}
