package story

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/gabriel-vasile/mimetype"
)

var AcceptedImageTypes = []string{"image/jpeg", "image/png", "image/gif"}

const invalidImageMessage = "Please select a valid image file (JPEG, PNG, or GIF)"

type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

func ValidateImage(img *Image) error {
	if img == nil || !slices.Contains(AcceptedImageTypes, img.ContentType) {
		return &ValidationError{Message: invalidImageMessage}
	}
	return nil
}

// PreviewURL renders the image as a data URL so it can be shown without uploading it.
func (img *Image) PreviewURL() string {
	if img == nil {
		return ""
	}
	return "data:" + img.ContentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// LoadImage reads a file from disk and sniffs its media type from the content.
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}

	return &Image{
		Name:        filepath.Base(path),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}
