package story

import "errors"

const (
	networkErrorMessage    = "Network error. Please try again later."
	clipboardErrorMessage  = "Failed to copy text to clipboard"
	noImageMessage         = "Please select an image first"
	generateFailedMessage  = "An error occurred while generating the story"
	regenerateFailMessage  = "An error occurred while regenerating the story"
	narrationFailedMessage = "An error occurred while generating speech"
)

var (
	ErrInFlight             = errors.New("story: request already in flight")
	ErrNarrationUnavailable = errors.New("story: backend does not support narration")
	ErrNoStory              = &ValidationError{Message: "No story to use yet"}
	ErrNoAudio              = &ValidationError{Message: "No narration audio yet"}
)

type (
	// ValidationError is raised before any request is made.
	ValidationError struct {
		Message string
	}

	// RequestError is a failed backend call. Transport is set when the request itself
	// could not complete; otherwise Message is what the server reported.
	RequestError struct {
		Op        string
		Transport bool
		Message   string
		Err       error
	}
)

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown in the error region for err.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func transportError(op string, err error) *RequestError {
	return &RequestError{Op: op, Transport: true, Message: networkErrorMessage, Err: err}
}

func applicationError(op, serverMessage, fallback string) *RequestError {
	msg := serverMessage
	if msg == "" {
		msg = fallback
	}
	return &RequestError{Op: op, Message: msg}
}
