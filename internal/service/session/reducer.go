package session

import "github.com/zhouzirui/webverse/backend/internal/model/story"

// Event is an input to Reduce.
type Event interface {
	event()
}

// StartRequested marks an initial request as in flight.
type StartRequested struct{}

// AdvanceRequested marks an advance request as in flight.
type AdvanceRequested struct{}

// Started applies the first page of a story.
type Started struct{ Page *story.Page }

// Advanced applies the page following a choice.
type Advanced struct{ Page *story.Page }

// RequestFailed records a failed request. Replace swaps the story text for
// Message; otherwise the previous page text stays visible.
type RequestFailed struct {
	Message string
	Replace bool
}

// ResetRequested discards the session.
type ResetRequested struct{}

func (StartRequested) event()   {}
func (AdvanceRequested) event() {}
func (Started) event()          {}
func (Advanced) event()         {}
func (RequestFailed) event()    {}
func (ResetRequested) event()   {}

// Reduce returns the session that results from applying ev to s. It never
// mutates s. History and PageNumber change only on Started, Advanced and
// ResetRequested.
func Reduce(s Session, ev Event) Session {
	next := s.Clone()

	switch e := ev.(type) {
	case StartRequested, AdvanceRequested:
		next.Status = StatusLoading
		next.Choices = nil
		next.Image = nil
		next.Message = ""

	case Started:
		if e.Page == nil {
			return next
		}
		applyPage(&next, e.Page)
		next.PageNumber = 1

	case Advanced:
		if e.Page == nil {
			return next
		}
		applyPage(&next, e.Page)
		next.PageNumber = s.PageNumber + 1

	case RequestFailed:
		next.Status = StatusError
		next.Choices = nil
		next.Message = e.Message
		if e.Replace {
			next.StoryText = e.Message
			next.Dialogues = nil
		}

	case ResetRequested:
		return New()
	}

	return next
}

func applyPage(s *Session, page *story.Page) {
	s.StoryText = page.Story
	s.Dialogues = append([]story.Dialogue(nil), page.Dialogues...)
	s.Choices = append([]story.Choice(nil), page.Choices...)
	s.History = story.CloneHistory(page.History)
	s.Image = nil
	if page.Image != nil {
		s.Image = append([]byte(nil), page.Image...)
	}
	s.Status = StatusReady
	s.Message = ""
}
