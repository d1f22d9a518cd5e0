package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"storyfront/internal/story"
)

type generateOptions struct {
	directive string
	narrate   bool
	out       string
	audioOut  string
	copy      bool
}

func newGenerateCmd(opts *options) *cobra.Command {
	gen := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate IMAGE",
		Short: "Write a story about an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newTerminal(cmd.OutOrStdout(), cmd.ErrOrStderr())
			defer ui.Stop()

			ctl, err := opts.newController(ui)
			if err != nil {
				return err
			}
			return runGenerate(cmd.Context(), ctl, ui, opts.clipboard, args[0], gen)
		},
	}

	cmd.Flags().StringVarP(&gen.directive, "directive", "d", "", "regenerate the story with this directive")
	cmd.Flags().BoolVar(&gen.narrate, "narrate", false, "generate a spoken narration")
	cmd.Flags().StringVarP(&gen.out, "out", "o", "", "write the story to this file")
	cmd.Flags().StringVar(&gen.audioOut, "audio-out", "", "write the narration to this file (implies --narrate)")
	cmd.Flags().BoolVar(&gen.copy, "copy", false, "copy the story to the clipboard")

	return cmd
}

func runGenerate(ctx context.Context, ctl *story.Controller, ui *terminal, clipboard story.Clipboard, path string, gen *generateOptions) error {
	img, err := story.LoadImage(path)
	if err != nil {
		return err
	}

	steps := []func() error{
		func() error { return ctl.SelectImage(img) },
		func() error { return ctl.Generate(ctx) },
	}
	if gen.directive != "" {
		steps = append(steps, func() error { return ctl.Regenerate(ctx, gen.directive) })
	}
	if gen.narrate || gen.audioOut != "" {
		steps = append(steps, func() error { return ctl.Narrate(ctx) })
	}

	for _, step := range steps {
		if err := step(); err != nil {
			ui.Stop()
			ui.Report(err)
			return err
		}
	}
	ui.Stop()
	ui.Story(ctl.View())

	if gen.out != "" {
		att, err := ctl.DownloadStory()
		if err != nil {
			return err
		}
		if err := saveAttachment(att, gen.out); err != nil {
			return err
		}
		ui.Success("Story saved to %s", gen.out)
	}

	if gen.audioOut != "" {
		att, err := ctl.DownloadAudio(ctx)
		if err != nil {
			ui.Report(err)
			return err
		}
		if err := saveAttachment(att, gen.audioOut); err != nil {
			return err
		}
		ui.Success("Narration saved to %s", gen.audioOut)
	}

	if gen.copy {
		if err := ctl.CopyStory(ctx, clipboard); err != nil {
			ui.Report(err)
			return err
		}
		ui.Success("Copied!")
	}

	return nil
}

func saveAttachment(att *story.Attachment, path string) error {
	defer att.Body.Close()

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(file, att.Body); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
