package main

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	"github.com/fatih/color"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/spf13/cobra"

	"storyfront/internal/story"
)

type (
	cliConfig struct {
		Server  string        `env:"STORY_BACKEND_URL" env-default:"http://localhost:5000"`
		Timeout time.Duration `env:"STORY_BACKEND_TIMEOUT" env-default:"2m"`
	}

	options struct {
		cliConfig
		noColor bool

		// clipboard is swapped in tests.
		clipboard story.Clipboard
	}
)

var systemClipboard = story.ClipboardFunc(func(_ context.Context, text string) error {
	return clipboard.WriteAll(text)
})

func newRootCmd() *cobra.Command {
	opts := &options{clipboard: systemClipboard}

	cmd := &cobra.Command{
		Use:   "storyctl",
		Short: "Turn pictures into short stories from the terminal",
		Long: `storyctl talks to a story server: it uploads an image, prints the story written
about it, regenerates it with a directive and fetches a spoken narration.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var env cliConfig
			if err := cleanenv.ReadEnv(&env); err != nil {
				return err
			}
			if !cmd.Flags().Changed("server") {
				opts.Server = env.Server
			}
			if !cmd.Flags().Changed("timeout") {
				opts.Timeout = env.Timeout
			}
			if opts.noColor {
				color.NoColor = true
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "story server URL (default $STORY_BACKEND_URL or http://localhost:5000)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 0, "per-request timeout (default $STORY_BACKEND_TIMEOUT or 2m)")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(newGenerateCmd(opts))
	cmd.AddCommand(newShellCmd(opts))

	return cmd
}

// newController wires a controller to the configured server and to the terminal UI.
func (o *options) newController(ui *terminal) (*story.Controller, error) {
	client, err := story.NewClient(story.ClientConfig{
		BaseURL: o.Server,
		Timeout: o.Timeout,
	})
	if err != nil {
		return nil, err
	}

	ctl := story.NewController(client, story.WithLogger(discardLogger))
	ctl.Subscribe(ui.Follow)
	return ctl, nil
}
