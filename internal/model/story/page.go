package story

import "encoding/json"

// Choice is one selectable option on a page. IDs are unique within a page.
type Choice struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// Dialogue is a single spoken line; order on a page is significant.
type Dialogue struct {
	Speaker string `json:"speaker"`
	Line    string `json:"line"`
}

// Page is a validated story page produced by the generation backend.
type Page struct {
	Number    int
	Story     string
	Dialogues []Dialogue
	Choices   []Choice
	// History is opaque to the client and handed back verbatim on the next advance.
	History []json.RawMessage
	Image   []byte
}

// AdvanceRequest is the JSON body that moves the story forward by one choice.
type AdvanceRequest struct {
	History []json.RawMessage `json:"history"`
	Choice  string            `json:"choice"`
}

// NewAdvanceRequest copies history so later mutation of the caller's slice
// cannot leak into a request that is already in flight.
func NewAdvanceRequest(history []json.RawMessage, label string) AdvanceRequest {
	return AdvanceRequest{
		History: CloneHistory(history),
		Choice:  label,
	}
}

// CloneHistory deep-copies a history slice. A nil input yields an empty,
// non-nil slice so it encodes as [] rather than null.
func CloneHistory(history []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, len(history))
	for i, turn := range history {
		out[i] = append(json.RawMessage(nil), turn...)
	}
	return out
}
