package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"storyfront/internal/story"
)

// The controller logs for servers; the terminal reports through terminal instead.
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var busyMessages = map[story.EventKind]string{
	story.EventGenerateStarted:   "Writing your story...",
	story.EventRegenerateStarted: "Rewriting your story...",
	story.EventNarrationStarted:  "Generating narration...",
}

// terminal prints controller output and shows a spinner while a request is outstanding.
type terminal struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	spinner *spinner.Spinner
}

func newTerminal(out, errOut io.Writer) *terminal {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Writer = errOut
	return &terminal{
		out:     out,
		errOut:  errOut,
		spinner: s,
	}
}

// Follow is subscribed to the controller.
func (t *terminal) Follow(ev story.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg, ok := busyMessages[ev.Kind]; ok {
		t.spinner.Suffix = " " + msg
		t.spinner.Start()
		return
	}
	t.spinner.Stop()
}

func (t *terminal) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spinner.Stop()
}

func (t *terminal) Success(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(t.out, "✓ %s\n", fmt.Sprintf(format, args...))
}

func (t *terminal) Info(format string, args ...any) {
	fmt.Fprintf(t.out, "%s\n", fmt.Sprintf(format, args...))
}

func (t *terminal) Error(format string, args ...any) {
	color.New(color.FgRed).Fprintf(t.errOut, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Story prints the result area of a view.
func (t *terminal) Story(v story.View) {
	if v.Error != "" {
		t.Error("%s", v.Error)
		return
	}
	if !v.ShowResult() {
		if v.ImageName != "" {
			t.Info("Selected %s. Run generate to get a story.", v.ImageName)
		} else {
			t.Info("No image selected.")
		}
		return
	}

	heading := color.New(color.Bold)
	heading.Fprintln(t.out, "Story")
	fmt.Fprintln(t.out, strings.Join(v.Paragraphs, "\n\n"))
	if v.StoryLink != "" {
		color.New(color.FgCyan).Fprintf(t.out, "\nSaved at %s\n", v.StoryLink)
	}
	if v.Analysis != "" {
		heading.Fprintln(t.out, "\nImage analysis")
		fmt.Fprintln(t.out, v.Analysis)
	}
	if v.AudioURL != "" {
		color.New(color.FgCyan).Fprintf(t.out, "\nNarration: %s\n", v.AudioURL)
	}
}

// Report prints why an action failed. Superseded responses are not failures.
func (t *terminal) Report(err error) {
	switch {
	case err == nil, errors.Is(err, story.ErrSuperseded):
	default:
		t.Error("%s", story.UserMessage(err))
	}
}
