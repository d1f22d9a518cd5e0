package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"storyfront/internal/story"
)

const shellHelp = `Commands:
  select PATH             choose an image
  generate                write a story about the selected image
  regenerate [DIRECTIVE]  write the story again, optionally steering it
  narrate                 generate a spoken narration of the story
  save PATH               write the story to a file
  audio PATH              write the narration to a file
  copy                    copy the story to the clipboard
  show                    print the current story
  reset                   forget the image and the story
  help                    show this help
  quit                    leave the shell`

var errQuit = errors.New("quit")

type shell struct {
	ctl       *story.Controller
	ui        *terminal
	clipboard story.Clipboard
}

func newShellCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Work on one story interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newTerminal(cmd.OutOrStdout(), cmd.ErrOrStderr())
			defer ui.Stop()

			ctl, err := opts.newController(ui)
			if err != nil {
				return err
			}

			sh := &shell{ctl: ctl, ui: ui, clipboard: opts.clipboard}
			return sh.Run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

// Run reads commands until quit or end of input. A failing command is reported and
// the shell keeps going.
func (sh *shell) Run(ctx context.Context, in io.Reader) error {
	prompt := color.New(color.FgMagenta, color.Bold)
	scanner := bufio.NewScanner(in)

	for {
		prompt.Fprint(sh.ui.out, "story> ")
		if !scanner.Scan() {
			fmt.Fprintln(sh.ui.out)
			return scanner.Err()
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		err := sh.exec(ctx, fields[0], fields[1:])
		sh.ui.Stop()
		if errors.Is(err, errQuit) {
			return nil
		}
		sh.ui.Report(err)
	}
}

func (sh *shell) exec(ctx context.Context, name string, args []string) error {
	switch name {
	case "select":
		if len(args) != 1 {
			return errors.New("usage: select PATH")
		}
		img, err := story.LoadImage(args[0])
		if err != nil {
			return err
		}
		if err := sh.ctl.SelectImage(img); err != nil {
			return err
		}
		sh.ui.Success("Selected %s (%s)", img.Name, img.ContentType)
		return nil

	case "generate":
		return sh.show(sh.ctl.Generate(ctx))

	case "regenerate":
		return sh.show(sh.ctl.Regenerate(ctx, strings.Join(args, " ")))

	case "narrate":
		return sh.show(sh.ctl.Narrate(ctx))

	case "save":
		if len(args) != 1 {
			return errors.New("usage: save PATH")
		}
		att, err := sh.ctl.DownloadStory()
		if err != nil {
			return err
		}
		if err := saveAttachment(att, args[0]); err != nil {
			return err
		}
		sh.ui.Success("Story saved to %s", args[0])
		return nil

	case "audio":
		if len(args) != 1 {
			return errors.New("usage: audio PATH")
		}
		att, err := sh.ctl.DownloadAudio(ctx)
		if err != nil {
			return err
		}
		if err := saveAttachment(att, args[0]); err != nil {
			return err
		}
		sh.ui.Success("Narration saved to %s", args[0])
		return nil

	case "copy":
		if err := sh.ctl.CopyStory(ctx, sh.clipboard); err != nil {
			return err
		}
		sh.ui.Success("Copied!")
		return nil

	case "show":
		sh.ui.Story(sh.ctl.View())
		return nil

	case "reset":
		sh.ctl.Reset()
		sh.ui.Info("Cleared.")
		return nil

	case "help":
		sh.ui.Info(shellHelp)
		return nil

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q, try help", name)
	}
}

// show prints the view after a request. A failed request already put its message in
// the view, so it is not reported twice.
func (sh *shell) show(err error) error {
	var verr *story.ValidationError
	var rerr *story.RequestError
	if err != nil && !errors.As(err, &verr) && !errors.As(err, &rerr) {
		return err
	}
	sh.ui.Stop()
	sh.ui.Story(sh.ctl.View())
	return nil
}
