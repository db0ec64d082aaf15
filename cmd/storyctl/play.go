package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	narrationmodel "github.com/zhouzirui/webverse/backend/internal/model/narration"
	"github.com/zhouzirui/webverse/backend/internal/service/dispatch"
	"github.com/zhouzirui/webverse/backend/internal/service/identity"
	"github.com/zhouzirui/webverse/backend/internal/service/narration"
	"github.com/zhouzirui/webverse/backend/internal/service/session"
)

// Narrator synthesizes narration audio.
type Narrator interface {
	Narrate(ctx context.Context, text, voiceID string) (*narrationmodel.Response, error)
}

func newPlayCmd(opts *rootOptions) *cobra.Command {
	var (
		audioDir   string
		effectRate float64
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Start an interactive story session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := opts.cfg
			provider := identity.NewTokenProvider(identity.StaticToken(cfg.AccessToken))
			dispatcher := dispatch.New(cfg.ProxyURL,
				dispatch.WithTimeout(cfg.Timeout),
				dispatch.WithTokenSource(provider.Token),
				dispatch.WithLogger(opts.log),
			)

			var narrator Narrator
			if cfg.Narration.Enabled() {
				narrator = narration.NewService(cfg.Narration.Service(), opts.log)
			}

			p := &player{
				machine:  session.NewMachine(dispatcher, session.WithSeedPrompt(cfg.SeedPrompt), session.WithLogger(opts.log)),
				identity: provider,
				narrator: narrator,
				voiceID:  cfg.Narration.VoiceID,
				audioDir: audioDir,
				effects:  newEffects(effectRate, 0),
				out:      cmd.OutOrStdout(),
				log:      opts.log,
			}
			return p.run(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&audioDir, "audio-dir", os.TempDir(), "directory for narration audio files")
	cmd.Flags().Float64Var(&effectRate, "effects", 0.7, "share of choices that trigger a sound effect (0 disables)")

	return cmd
}

// player is the terminal front end of a story session.
type player struct {
	machine  *session.Machine
	identity identity.Provider
	narrator Narrator
	voiceID  string
	audioDir string
	effects  *effects
	out      io.Writer
	log      *zap.Logger
}

func (p *player) run(ctx context.Context, in io.Reader) error {
	if err := p.identity.Login(ctx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Fprintf(p.out, "Spider-Verse Interactive Story\nWelcome, %s\n\n", p.identity.DisplayName())

	s, err := p.machine.Start(ctx)
	p.show(s, err)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(p.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(p.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "q", "quit", "logout":
			p.machine.Reset()
			if err := p.identity.Logout(ctx); err != nil {
				p.log.Warn("logout failed", zap.Error(err))
			}
			fmt.Fprintln(p.out, "Logged out. See you next time!")
			return nil
		case "r", "restart":
			s, err := p.machine.Restart(ctx)
			p.show(s, err)
		case "retry":
			s, err := p.machine.Retry(ctx)
			p.show(s, err)
		case "n", "narrate":
			p.narrate(ctx)
		case "h", "help", "?":
			fmt.Fprintln(p.out, helpText)
		default:
			id, convErr := strconv.Atoi(line)
			if convErr != nil {
				fmt.Fprintln(p.out, helpText)
				continue
			}
			if sound, ok := p.effects.trigger(); ok {
				fmt.Fprintf(p.out, "*%s*\n", sound)
			}
			s, err := p.machine.Advance(ctx, id, "")
			p.show(s, err)
		}
	}
}

// show renders s, or explains why the command was refused without a state change.
func (p *player) show(s session.Session, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownChoice):
		fmt.Fprintln(p.out, "That choice is not on this page.")
		return
	case errors.Is(err, session.ErrInvalidTransition):
		fmt.Fprintln(p.out, "You cannot do that right now.")
		return
	case errors.Is(err, session.ErrBusy):
		fmt.Fprintln(p.out, "Still loading, hang on.")
		return
	case errors.Is(err, session.ErrSessionReset):
		return
	}
	renderSession(p.out, s)
}

func (p *player) narrate(ctx context.Context) {
	if p.narrator == nil {
		fmt.Fprintln(p.out, "Narration is not configured.")
		return
	}
	s := p.machine.Snapshot()
	if s.Status != session.StatusReady {
		fmt.Fprintln(p.out, "Nothing to narrate yet.")
		return
	}

	resp, err := p.narrator.Narrate(ctx, s.StoryText, p.voiceID)
	if err != nil {
		p.log.Warn("narration failed", zap.Error(err))
		fmt.Fprintln(p.out, "Narration failed.")
		return
	}

	path := filepath.Join(p.audioDir, fmt.Sprintf("narration-%s-page-%d.%s", s.ID[:8], s.PageNumber, resp.Extension()))
	if err := os.WriteFile(path, resp.Audio, 0o644); err != nil {
		p.log.Warn("write narration audio", zap.String("path", path), zap.Error(err))
		fmt.Fprintln(p.out, "Narration failed.")
		return
	}
	fmt.Fprintf(p.out, "Narration saved to %s\n", path)
}
