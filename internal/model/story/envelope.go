package story

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeError reports a response body that does not match the page envelope
// {writer: {...}, image: {data}}.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode story response: %v", e.Err)
	}
	return fmt.Sprintf("decode story response: %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var (
	errMissing   = errors.New("missing")
	errDuplicate = errors.New("duplicate choice id")
	errEmpty     = errors.New("empty")
)

type wireWriter struct {
	Page      *int               `json:"page"`
	Story     *string            `json:"story"`
	Dialogues *[]Dialogue        `json:"dialogues"`
	Choices   *[]Choice          `json:"choices"`
	History   *[]json.RawMessage `json:"history"`
}

// DecodeResponse validates a raw backend body and converts it into a Page.
// Every field of the envelope must be present with the right JSON type;
// nothing is defaulted.
func DecodeResponse(body []byte) (*Page, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, &DecodeError{Err: err}
	}

	writerRaw, err := requireObject(top, "writer", "writer")
	if err != nil {
		return nil, err
	}
	imageRaw, err := requireObject(top, "image", "image")
	if err != nil {
		return nil, err
	}

	var w wireWriter
	if err := json.Unmarshal(writerRaw, &w); err != nil {
		return nil, &DecodeError{Field: "writer", Err: err}
	}
	switch {
	case w.Page == nil:
		return nil, &DecodeError{Field: "writer.page", Err: errMissing}
	case w.Story == nil:
		return nil, &DecodeError{Field: "writer.story", Err: errMissing}
	case w.Dialogues == nil:
		return nil, &DecodeError{Field: "writer.dialogues", Err: errMissing}
	case w.Choices == nil:
		return nil, &DecodeError{Field: "writer.choices", Err: errMissing}
	case w.History == nil:
		return nil, &DecodeError{Field: "writer.history", Err: errMissing}
	}
	if *w.Page < 1 {
		return nil, &DecodeError{Field: "writer.page", Err: fmt.Errorf("must be positive, got %d", *w.Page)}
	}

	seen := make(map[int]struct{}, len(*w.Choices))
	for i, c := range *w.Choices {
		if strings.TrimSpace(c.Label) == "" {
			return nil, &DecodeError{Field: fmt.Sprintf("writer.choices[%d].label", i), Err: errEmpty}
		}
		if _, dup := seen[c.ID]; dup {
			return nil, &DecodeError{Field: fmt.Sprintf("writer.choices[%d].id", i), Err: errDuplicate}
		}
		seen[c.ID] = struct{}{}
	}

	image, err := decodeImage(imageRaw)
	if err != nil {
		return nil, err
	}

	return &Page{
		Number:    *w.Page,
		Story:     *w.Story,
		Dialogues: *w.Dialogues,
		Choices:   *w.Choices,
		History:   *w.History,
		Image:     image,
	}, nil
}

func decodeImage(raw json.RawMessage) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &DecodeError{Field: "image", Err: err}
	}
	data, ok := fields["data"]
	if !ok {
		return nil, &DecodeError{Field: "image.data", Err: errMissing}
	}
	if isNull(data) {
		return nil, nil
	}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, &DecodeError{Field: "image.data", Err: err}
	}
	if encoded == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &DecodeError{Field: "image.data", Err: err}
	}
	return decoded, nil
}

func requireObject(top map[string]json.RawMessage, key, field string) (json.RawMessage, error) {
	raw, ok := top[key]
	if !ok || isNull(raw) {
		return nil, &DecodeError{Field: field, Err: errMissing}
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &DecodeError{Field: field, Err: errors.New("not an object")}
	}
	return raw, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
