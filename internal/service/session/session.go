package session

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/zhouzirui/webverse/backend/internal/model/story"
)

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusReady         Status = "ready"
	StatusError         Status = "error"
)

// Session is the client's record of narrative progress.
// PageNumber is 0 until the first page has loaded.
type Session struct {
	ID         string
	PageNumber int
	StoryText  string
	Dialogues  []story.Dialogue
	Choices    []story.Choice
	History    []json.RawMessage
	Image      []byte
	Status     Status
	// Message is the user-facing text of the last failure.
	Message string
}

// New returns an uninitialized session with a fresh id.
func New() Session {
	return Session{
		ID:      uuid.NewString(),
		History: []json.RawMessage{},
		Status:  StatusUninitialized,
	}
}

// Clone deep-copies s so callers can render it without sharing slices.
func (s Session) Clone() Session {
	out := s
	out.Dialogues = append([]story.Dialogue(nil), s.Dialogues...)
	out.Choices = append([]story.Choice(nil), s.Choices...)
	out.History = story.CloneHistory(s.History)
	if s.Image != nil {
		out.Image = append([]byte(nil), s.Image...)
	}
	return out
}

// FindChoice looks up a choice on the current page.
func (s Session) FindChoice(id int) (story.Choice, bool) {
	for _, c := range s.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return story.Choice{}, false
}
