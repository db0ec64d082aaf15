package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/webverse/backend/internal/service/narration"
)

func newNarrateCmd(opts *rootOptions) *cobra.Command {
	var (
		text    string
		voiceID string
		outPath string
	)

	cmd := &cobra.Command{
		Use:     "narrate",
		Short:   "Synthesize narration audio for a piece of text",
		Example: `  storyctl narrate --text "Miles swings into Brooklyn." --out page1.mp3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := narration.NewService(opts.cfg.Narration.Service(), opts.log)
			if !svc.Enabled() {
				return fmt.Errorf("narration is not configured: set NARRATION_ENDPOINT and NARRATION_API_KEY")
			}

			resp, err := svc.Narrate(cmd.Context(), text, voiceID)
			if err != nil {
				return err
			}

			path := outPath
			if path == "" {
				path = fmt.Sprintf("narration-%s.%s", resp.RequestID[:8], resp.Extension())
			}
			if err := os.WriteFile(path, resp.Audio, 0o644); err != nil {
				return fmt.Errorf("write audio: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes (%s) to %s\n", len(resp.Audio), resp.ContentType, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "text to narrate")
	cmd.Flags().StringVar(&voiceID, "voice", "", "voice id (default $NARRATION_VOICE_ID)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default narration-<id>.<ext>)")
	_ = cmd.MarkFlagRequired("text")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("--text must not be blank")
		}
		return nil
	}

	return cmd
}
