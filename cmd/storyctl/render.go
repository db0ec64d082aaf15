package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/zhouzirui/webverse/backend/internal/service/session"
)

const rule = "----------------------------------------"

// renderSession prints the session as the player sees it.
func renderSession(w io.Writer, s session.Session) {
	switch s.Status {
	case session.StatusUninitialized:
		fmt.Fprintln(w, "No story yet. Type r to start one.")
		return
	case session.StatusLoading:
		fmt.Fprintln(w, "Loading your web-slingers...")
		return
	}

	if s.PageNumber > 0 {
		fmt.Fprintf(w, "%s\nComic Page %d\n%s\n", rule, s.PageNumber, rule)
	}
	if text := strings.TrimSpace(s.StoryText); text != "" {
		fmt.Fprintln(w, text)
	}
	for _, d := range s.Dialogues {
		fmt.Fprintf(w, "  %s: %q\n", d.Speaker, d.Line)
	}
	if len(s.Image) > 0 {
		fmt.Fprintf(w, "  [panel art: %d bytes]\n", len(s.Image))
	}

	if s.Status == session.StatusError {
		if s.Message != "" && s.Message != s.StoryText {
			fmt.Fprintf(w, "! %s\n", s.Message)
		}
		fmt.Fprintln(w, "Type retry to try again or r to choose another comic.")
		return
	}

	if len(s.Choices) == 0 {
		fmt.Fprintln(w, "The End. Type r to choose another comic.")
		return
	}
	fmt.Fprintln(w, "What next?")
	for _, c := range s.Choices {
		fmt.Fprintf(w, "  [%d] %s\n", c.ID, c.Label)
	}
}

const helpText = `Commands:
  <number>  pick a choice
  n         play narration for this page
  retry     retry the last failed request
  r         choose another comic (restart)
  q         log out and quit`
