package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/webverse/backend/internal/model/narration"
	"github.com/zhouzirui/webverse/backend/internal/model/story"
	"github.com/zhouzirui/webverse/backend/internal/service/dispatch"
	"github.com/zhouzirui/webverse/backend/internal/service/session"
)

type scriptedSender struct {
	replies []scripted
	sent    []dispatch.Envelope
}

type scripted struct {
	page *story.Page
	err  error
}

func (s *scriptedSender) Send(ctx context.Context, env dispatch.Envelope) (*story.Page, error) {
	s.sent = append(s.sent, env)
	r := s.replies[len(s.sent)-1]
	return r.page, r.err
}

type fakeIdentity struct {
	name      string
	loginErr  error
	loggedOut bool
}

func (f *fakeIdentity) Login(ctx context.Context) error  { return f.loginErr }
func (f *fakeIdentity) Logout(ctx context.Context) error { f.loggedOut = true; return nil }
func (f *fakeIdentity) IsAuthenticated() bool            { return f.loginErr == nil && !f.loggedOut }
func (f *fakeIdentity) DisplayName() string              { return f.name }

type fakeNarrator struct{ text string }

func (f *fakeNarrator) Narrate(ctx context.Context, text, voiceID string) (*narration.Response, error) {
	f.text = text
	return &narration.Response{Audio: []byte("ID3"), ContentType: "audio/mpeg"}, nil
}

func page(turns int, text string, choices ...story.Choice) *story.Page {
	p := &story.Page{Number: turns, Story: text, Choices: choices}
	for i := 0; i < turns; i++ {
		p.History = append(p.History, json.RawMessage(`"turn"`))
	}
	return p
}

func newPlayer(sender session.Sender, id *fakeIdentity, narrator Narrator, out *bytes.Buffer) *player {
	return &player{
		machine:  session.NewMachine(sender),
		identity: id,
		narrator: narrator,
		audioDir: os.TempDir(),
		effects:  newEffects(0, 1),
		out:      out,
		log:      zap.NewNop(),
	}
}

func TestPlayAdvanceAndQuit(t *testing.T) {
	sender := &scriptedSender{replies: []scripted{
		{page: page(1, "Miles lands on a rooftop.", story.Choice{ID: 1, Label: "Go left"}, story.Choice{ID: 2, Label: "Go right"})},
		{page: page(2, "A portal opens.", story.Choice{ID: 3, Label: "Jump in"})},
	}}
	id := &fakeIdentity{name: "Miles"}
	var out bytes.Buffer

	err := newPlayer(sender, id, nil, &out).run(context.Background(), strings.NewReader("9\n2\nq\n"))
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Welcome, Miles")
	assert.Contains(t, text, "Comic Page 1")
	assert.Contains(t, text, "[2] Go right")
	assert.Contains(t, text, "That choice is not on this page.")
	assert.Contains(t, text, "Comic Page 2")
	assert.Contains(t, text, "Logged out.")
	assert.True(t, id.loggedOut)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "Go right", sender.sent[1].Advance.Choice)
}

func TestPlayFailureThenRetry(t *testing.T) {
	sender := &scriptedSender{replies: []scripted{
		{page: page(1, "Start.", story.Choice{ID: 1, Label: "Go left"})},
		{err: &dispatch.NetworkError{StatusCode: 500}},
		{page: page(2, "Recovered.")},
	}}
	var out bytes.Buffer

	err := newPlayer(sender, &fakeIdentity{name: "Guest"}, nil, &out).run(context.Background(), strings.NewReader("1\nretry\n"))
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Type retry to try again")
	assert.Contains(t, text, "Recovered.")
	assert.Contains(t, text, "The End.")
}

func TestPlayLoginFailure(t *testing.T) {
	var out bytes.Buffer
	p := newPlayer(&scriptedSender{}, &fakeIdentity{loginErr: errors.New("no token")}, nil, &out)

	err := p.run(context.Background(), strings.NewReader(""))
	assert.ErrorContains(t, err, "login failed")
}

func TestPlayNarrateWritesAudio(t *testing.T) {
	sender := &scriptedSender{replies: []scripted{{page: page(1, "Narrate me.", story.Choice{ID: 1, Label: "Go"})}}}
	narrator := &fakeNarrator{}
	var out bytes.Buffer
	p := newPlayer(sender, &fakeIdentity{name: "Miles"}, narrator, &out)
	p.audioDir = t.TempDir()

	require.NoError(t, p.run(context.Background(), strings.NewReader("n\n")))

	assert.Equal(t, "Narrate me.", narrator.text)
	matches, err := filepath.Glob(filepath.Join(p.audioDir, "narration-*-page-1.mp3"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestPlayNarrateUnavailable(t *testing.T) {
	sender := &scriptedSender{replies: []scripted{{page: page(1, "x")}}}
	var out bytes.Buffer

	require.NoError(t, newPlayer(sender, &fakeIdentity{}, nil, &out).run(context.Background(), strings.NewReader("n\n")))
	assert.Contains(t, out.String(), "Narration is not configured.")
}

func TestEffectsRate(t *testing.T) {
	quiet := newEffects(0, 42)
	loud := newEffects(1, 42)
	for i := 0; i < 50; i++ {
		_, ok := quiet.trigger()
		assert.False(t, ok)
		sound, ok := loud.trigger()
		assert.True(t, ok)
		assert.Contains(t, soundEffects, sound)
	}

	var nilEffects *effects
	_, ok := nilEffects.trigger()
	assert.False(t, ok)
}

func TestRenderSessionStates(t *testing.T) {
	var out bytes.Buffer
	renderSession(&out, session.New())
	assert.Contains(t, out.String(), "No story yet")

	out.Reset()
	renderSession(&out, session.Session{
		PageNumber: 3,
		StoryText:  "S",
		Dialogues:  []story.Dialogue{{Speaker: "Gwen", Line: "Hey."}},
		Image:      []byte{1, 2, 3},
		Choices:    []story.Choice{{ID: 4, Label: "Run"}},
		Status:     session.StatusReady,
	})
	text := out.String()
	assert.Contains(t, text, "Comic Page 3")
	assert.Contains(t, text, `Gwen: "Hey."`)
	assert.Contains(t, text, "[panel art: 3 bytes]")
	assert.Contains(t, text, "[4] Run")
}
