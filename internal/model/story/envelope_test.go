package story

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBody = `{"writer":{"page":1,"story":"S","dialogues":[{"speaker":"Miles","line":"Whoa."}],"choices":[{"id":1,"label":"Go left"}],"history":["h0"]},"image":{"data":"AAAA"}}`

func TestDecodeResponseValid(t *testing.T) {
	page, err := DecodeResponse([]byte(validBody))
	require.NoError(t, err)

	assert.Equal(t, 1, page.Number)
	assert.Equal(t, "S", page.Story)
	assert.Equal(t, []Dialogue{{Speaker: "Miles", Line: "Whoa."}}, page.Dialogues)
	assert.Equal(t, []Choice{{ID: 1, Label: "Go left"}}, page.Choices)
	require.Len(t, page.History, 1)
	assert.JSONEq(t, `"h0"`, string(page.History[0]))
	assert.Equal(t, []byte{0, 0, 0}, page.Image)
}

func TestDecodeResponseNullImage(t *testing.T) {
	body := `{"writer":{"page":2,"story":"","dialogues":[],"choices":[],"history":[]},"image":{"data":null}}`
	page, err := DecodeResponse([]byte(body))
	require.NoError(t, err)
	assert.Nil(t, page.Image)
	assert.Empty(t, page.Choices)
}

func TestDecodeResponseRejectsMalformed(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{name: "not json", body: `<html>`, field: ""},
		{name: "missing writer", body: `{"image":{"data":null}}`, field: "writer"},
		{name: "null writer", body: `{"writer":null,"image":{"data":null}}`, field: "writer"},
		{name: "missing image", body: `{"writer":{"page":1,"story":"","dialogues":[],"choices":[],"history":[]}}`, field: "image"},
		{name: "image without data", body: `{"writer":{"page":1,"story":"","dialogues":[],"choices":[],"history":[]},"image":{}}`, field: "image.data"},
		{name: "missing story", body: `{"writer":{"page":1,"dialogues":[],"choices":[],"history":[]},"image":{"data":null}}`, field: "writer.story"},
		{name: "missing history", body: `{"writer":{"page":1,"story":"","dialogues":[],"choices":[]},"image":{"data":null}}`, field: "writer.history"},
		{name: "null choices", body: `{"writer":{"page":1,"story":"","dialogues":[],"choices":null,"history":[]},"image":{"data":null}}`, field: "writer.choices"},
		{name: "missing page", body: `{"writer":{"story":"","dialogues":[],"choices":[],"history":[]},"image":{"data":null}}`, field: "writer.page"},
		{name: "zero page", body: `{"writer":{"page":0,"story":"","dialogues":[],"choices":[],"history":[]},"image":{"data":null}}`, field: "writer.page"},
		{name: "story wrong type", body: `{"writer":{"page":1,"story":7,"dialogues":[],"choices":[],"history":[]},"image":{"data":null}}`, field: "writer"},
		{name: "duplicate choice", body: `{"writer":{"page":1,"story":"","dialogues":[],"choices":[{"id":1,"label":"a"},{"id":1,"label":"b"}],"history":[]},"image":{"data":null}}`, field: "writer.choices[1].id"},
		{name: "blank label", body: `{"writer":{"page":1,"story":"","dialogues":[],"choices":[{"id":1,"label":" "}],"history":[]},"image":{"data":null}}`, field: "writer.choices[0].label"},
		{name: "bad base64", body: `{"writer":{"page":1,"story":"","dialogues":[],"choices":[],"history":[]},"image":{"data":"%%%"}}`, field: "image.data"},
		{name: "image data number", body: `{"writer":{"page":1,"story":"","dialogues":[],"choices":[],"history":[]},"image":{"data":5}}`, field: "image.data"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeResponse([]byte(tc.body))
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %v", err)
			assert.Equal(t, tc.field, decodeErr.Field)
		})
	}
}

func TestNewAdvanceRequestCopiesHistory(t *testing.T) {
	history := []json.RawMessage{json.RawMessage(`"h0"`)}
	req := NewAdvanceRequest(history, "Go left")
	history[0][1] = 'X'

	assert.Equal(t, `"h0"`, string(req.History[0]))

	encoded, err := json.Marshal(NewAdvanceRequest(nil, "Go left"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"history":[],"choice":"Go left"}`, string(encoded))
}
